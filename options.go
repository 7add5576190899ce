package groupcore

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/file"
)

// Options contains client configuration.
type Options struct {
	// SelfID is the user ID the client acts as. Required.
	SelfID string

	// DefaultInviteNeedsConfirm is the invite confirmation setting
	// applied to groups created without an explicit choice.
	DefaultInviteNeedsConfirm bool

	// TransferChunkSize is the chunk size in bytes for attachment
	// uploads and downloads.
	TransferChunkSize int

	// MaxConcurrentTransfers bounds the number of attachment transfers
	// running at once.
	MaxConcurrentTransfers int
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	logrus.WithFields(logrus.Fields{
		"function": "NewOptions",
	}).Debug("Creating default options")

	return &Options{
		DefaultInviteNeedsConfirm: true,
		TransferChunkSize:         file.DefaultChunkSize,
		MaxConcurrentTransfers:    file.DefaultMaxConcurrent,
	}
}
