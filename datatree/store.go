// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package datatree

import "context"

// Datastore selects the configuration or the operational view.
type Datastore int

const (
	Config Datastore = iota
	State
)

func (d Datastore) String() string {
	if d == State {
		return "state"
	}
	return "config"
}

// Store reads and modifies data trees by identifier.
//
// Read reports false when nothing is stored at id. Write replaces the
// addressed node, Merge combines it with what is stored, and Delete removes
// it. Deleting an absent node is not an error.
type Store interface {
	Read(ctx context.Context, ds Datastore, id NodeIdentifier) (DataNode, bool, error)
	Write(ctx context.Context, ds Datastore, id NodeIdentifier, node DataNode) error
	Merge(ctx context.Context, ds Datastore, id NodeIdentifier, node DataNode) error
	Delete(ctx context.Context, ds Datastore, id NodeIdentifier) error
}
