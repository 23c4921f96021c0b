package services

import "time"

// SetTokenClock replaces the clock used to stamp issued session tokens.
func SetTokenClock(s *TokenService, now func() time.Time) { s.now = now }

// SetResetClock replaces the clock used to issue and check reset tokens.
func SetResetClock(s *ResetTokenService, now func() time.Time) { s.now = now }

// SetAccountClock replaces the clock used for user timestamps.
func SetAccountClock(s *AccountService, now func() time.Time) { s.now = now }

// FormatValidity exposes formatValidity.
var FormatValidity = formatValidity
