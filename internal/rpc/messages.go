package rpc

import (
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
)

type PushActiveRequest struct {
	Kind common.Kind     `json:"kind"`
	Doc  mirror.Document `json:"doc"`
}

type PushTombstoneRequest struct {
	Kind common.Kind `json:"kind"`
	ID   string      `json:"id"`
	// DeletedAt is unix milliseconds.
	DeletedAt int64 `json:"deletedAt"`
}

type PullRequest struct {
	Kind  common.Kind       `json:"kind"`
	Since mirror.Checkpoint `json:"since"`
}

type PullResponse struct {
	Changes mirror.Changes `json:"changes"`
}

type BatchRequest struct {
	Ops []mirror.Op `json:"ops"`
}

// RevisionResponse answers every write.
type RevisionResponse struct {
	Revision int64 `json:"revision"`
}
