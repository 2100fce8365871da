package bomimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnimaI/SMD-Manager/catalog"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// fakeStore keeps parts and BOMs in maps keyed by catalog number and device.
type fakeStore struct {
	mu         sync.Mutex
	parts      map[string]PartRecord
	boms       map[string]map[string]int
	devices    map[string]int
	nextID     int
	findErr    error
	replaceErr error
	replaces   int
}

func newFakeStore(existing ...PartRecord) *fakeStore {
	s := &fakeStore{
		parts:   map[string]PartRecord{},
		boms:    map[string]map[string]int{},
		devices: map[string]int{},
		nextID:  100,
	}
	for _, p := range existing {
		s.parts[p.CatalogNumber] = p
	}
	return s
}

func (s *fakeStore) FindPartByCatalogNumber(_ context.Context, number string) (*PartRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.parts[number]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakeStore) ReplaceBom(_ context.Context, device string, lines []BomLine) (*ReplaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	if s.replaceErr != nil {
		return nil, s.replaceErr
	}

	res := &ReplaceResult{}
	id, ok := s.devices[device]
	if !ok {
		s.nextID++
		id = s.nextID
		s.devices[device] = id
	}
	res.DeviceID = id

	bom := map[string]int{}
	linked := map[int]bool{}
	for _, line := range lines {
		p := line.Part
		if p.ID == 0 {
			if existing, ok := s.parts[p.CatalogNumber]; ok {
				p = existing
			} else {
				s.nextID++
				p.ID = s.nextID
				s.parts[p.CatalogNumber] = p
				res.NewParts++
			}
		}
		// Mirrors the unique (part, device) index of the real store.
		if linked[p.ID] {
			return nil, fmt.Errorf("duplicate entry for part %d on %s", p.ID, device)
		}
		linked[p.ID] = true
		bom[p.CatalogNumber] = line.Quantity
	}
	s.boms[device] = bom
	return res, nil
}

func (s *fakeStore) bom(device string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for k, v := range s.boms[device] {
		out[k] = v
	}
	return out
}

func (s *fakeStore) partCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parts)
}

func (s *fakeStore) part(number string) (PartRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[number]
	return p, ok
}

type fakeResolver struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
	calls    []string
}

func (r *fakeResolver) FetchByID(_ context.Context, number string) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, number)
	p, ok := r.products[number]
	if !ok {
		return nil, errors.New("digikey api error 404: not found")
	}
	return p, nil
}

func (r *fakeResolver) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.calls...)
	sort.Strings(out)
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []ImportEvent
}

func (p *fakePublisher) Publish(_ context.Context, e ImportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) published() []ImportEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ImportEvent(nil), p.events...)
}

type fakeArchiver struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (a *fakeArchiver) Archive(_ context.Context, objectName, _ string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[objectName] = data
	return nil
}

func (a *fakeArchiver) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for k := range a.objects {
		out = append(out, k)
	}
	return out
}
