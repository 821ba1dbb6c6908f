// Package runs keeps the most recent download results in memory.
package runs

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/gmrt-tiles/pkg/tiles"
)

const DefaultSize = 256

type Store struct {
	lru *lru.Cache[string, *tiles.Result]
}

func New(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	c, _ := lru.New[string, *tiles.Result](size)
	return &Store{lru: c}
}

// Put stores r under its run id; results without one are ignored.
func (s *Store) Put(r *tiles.Result) {
	if r == nil || r.RunID == "" {
		return
	}
	s.lru.Add(r.RunID, r)
}

func (s *Store) Get(id string) (*tiles.Result, bool) {
	return s.lru.Get(id)
}

func (s *Store) Len() int { return s.lru.Len() }
