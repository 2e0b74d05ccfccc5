package codebase

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/fxamacker/cbor/v2"
)

const sidecarVersion = 1

// sidecar is the CBOR form of the branch file.
type sidecar struct {
	Version  int            `cbor:"1,keyasint"`
	Current  string         `cbor:"2,keyasint,omitempty"`
	Branches []branchRecord `cbor:"3,keyasint,omitempty"`
	States   []stateRecord  `cbor:"4,keyasint,omitempty"`
}

type branchRecord struct {
	Name string    `cbor:"1,keyasint"`
	Head hash.Hash `cbor:"2,keyasint"`
}

type stateRecord struct {
	Hash     hash.Hash       `cbor:"1,keyasint"`
	Bindings []bindingRecord `cbor:"2,keyasint,omitempty"`
}

type bindingRecord struct {
	Name string    `cbor:"1,keyasint"`
	Hash hash.Hash `cbor:"2,keyasint"`
}

func newSidecar(m *Manager) *sidecar {
	s := &sidecar{Version: sidecarVersion, Current: m.current}
	for _, b := range m.branches {
		s.Branches = append(s.Branches, branchRecord{Name: b.Name, Head: b.Head})
	}
	sort.Slice(s.Branches, func(i, j int) bool { return s.Branches[i].Name < s.Branches[j].Name })

	for h, bindings := range m.states {
		rec := stateRecord{Hash: h}
		for name, target := range bindings {
			rec.Bindings = append(rec.Bindings, bindingRecord{Name: name, Hash: target})
		}
		sort.Slice(rec.Bindings, func(i, j int) bool { return rec.Bindings[i].Name < rec.Bindings[j].Name })
		s.States = append(s.States, rec)
	}
	sort.Slice(s.States, func(i, j int) bool { return hash.Compare(s.States[i].Hash, s.States[j].Hash) < 0 })
	return s
}

// apply installs the sidecar into m. States that reference terms missing
// from the codebase are dropped with a warning.
func (s *sidecar) apply(m *Manager) {
	for _, rec := range s.States {
		bindings := make(map[string]hash.Hash, len(rec.Bindings))
		complete := true
		for _, b := range rec.Bindings {
			if _, ok := m.cb.GetTerm(b.Hash); !ok {
				complete = false
				break
			}
			bindings[b.Name] = b.Hash
		}
		if !complete {
			log.Warningf("dropping state %s: references terms missing from the snapshot", rec.Hash.Short())
			continue
		}
		m.states[rec.Hash] = bindings
	}
	for _, b := range s.Branches {
		m.branches[b.Name] = &Branch{Name: b.Name, Head: b.Head}
	}
	if _, ok := m.branches[s.Current]; ok {
		m.current = s.Current
	}
}

func readSidecar(path string) (*sidecar, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read branch file: %w", err)
	}
	var s sidecar
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode branch file %s: %w", path, err)
	}
	if s.Version != sidecarVersion {
		return nil, fmt.Errorf("branch file %s: unsupported version %d", path, s.Version)
	}
	return &s, nil
}

func writeSidecar(path string, s *sidecar) error {
	data, err := compiler.CBOREncMode().Marshal(s)
	if err != nil {
		return fmt.Errorf("encode branch file: %w", err)
	}
	return WriteFileAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}
