package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrNoScore         = errors.New("no published score")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrInvalidLimit    = errors.New("invalid leaderboard limit")
	ErrInactive        = errors.New("nft is deactivated")
)
