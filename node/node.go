// Package node supply the local mesh address.
package node

import (
	"fmt"
	"sync/atomic"
)

// ID address of a mesh participant
type ID uint16

func (id ID) String() string { return fmt.Sprintf("node(%d)", uint16(id)) }

type Identity interface {
	ID() ID
}

// Static fixed identity, for nodes with a provisioned address.
type Static ID

func (s Static) ID() ID { return ID(s) }

// Var identity can be assigned after the node started, e.g. by an
// address negotiation running on another goroutine.
type Var struct {
	id atomic.Uint32
}

var _ Identity = (*Var)(nil)

func NewVar(id ID) *Var {
	var v = &Var{}
	v.Set(id)
	return v
}

func (v *Var) ID() ID    { return ID(v.id.Load()) }
func (v *Var) Set(id ID) { v.id.Store(uint32(id)) }
