package storage

import "avatarsynth/internal/ports"

// Provider is the storage contract used by the archive and the HTTP API.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
