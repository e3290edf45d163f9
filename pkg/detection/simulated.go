package detection

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// Zone is a patrolled area.
type Zone struct {
	ID          string
	Coordinates contracts.Coordinates
}

// DefaultZones are the four demo sectors.
var DefaultZones = []Zone{
	{ID: "Sector-1", Coordinates: contracts.Coordinates{Lat: 37.3417, Lng: -121.9751}},
	{ID: "Sector-2", Coordinates: contracts.Coordinates{Lat: 37.3425, Lng: -121.9760}},
	{ID: "Sector-3", Coordinates: contracts.Coordinates{Lat: 37.3410, Lng: -121.9740}},
	{ID: "Sector-4", Coordinates: contracts.Coordinates{Lat: 37.3430, Lng: -121.9770}},
}

// Scenario is an incident the simulator can produce.
type Scenario struct {
	Category    string
	Name        string
	Confidence  float64
	Description string
}

var DefaultScenarios = []Scenario{
	{Category: "wildfire", Name: "Active Wildfire", Confidence: 0.98, Description: "Large fire detected with smoke plume"},
	{Category: "flood", Name: "Flash Flood", Confidence: 0.92, Description: "Water overflow in low-lying area"},
	{Category: "accident", Name: "Multi-Vehicle Collision", Confidence: 0.88, Description: "Major traffic incident detected"},
	{Category: "mass_casualty", Name: "Mass Casualty Event", Confidence: 0.85, Description: "Large gathering with emergency response needed"},
}

// DefaultProbability is the chance that a poll detects an incident.
const DefaultProbability = 0.25

// SimulatedSource stands in for the drone vision feed. It is deterministic
// for a given seed.
type SimulatedSource struct {
	zones       map[string]Zone
	scenarios   []Scenario
	probability float64
	clock       func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSource creates a simulator over zones. Nil zones or scenarios
// select the defaults.
func NewSimulatedSource(seed uint64, zones []Zone, scenarios []Scenario, probability float64) *SimulatedSource {
	if len(zones) == 0 {
		zones = DefaultZones
	}
	if len(scenarios) == 0 {
		scenarios = DefaultScenarios
	}
	if probability < 0 || probability > 1 {
		probability = DefaultProbability
	}
	byID := make(map[string]Zone, len(zones))
	for _, z := range zones {
		byID[z.ID] = z
	}
	return &SimulatedSource{
		zones:       byID,
		scenarios:   scenarios,
		probability: probability,
		clock:       time.Now,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *SimulatedSource) WithClock(clock func() time.Time) *SimulatedSource {
	s.clock = clock
	return s
}

// ZonesFor returns zones for ids, placing unknown ids near the first default sector.
func ZonesFor(ids []string) []Zone {
	known := make(map[string]Zone, len(DefaultZones))
	for _, z := range DefaultZones {
		known[z.ID] = z
	}
	out := make([]Zone, 0, len(ids))
	for i, id := range ids {
		z, ok := known[id]
		if !ok {
			base := DefaultZones[0].Coordinates
			z = Zone{ID: id, Coordinates: contracts.Coordinates{
				Lat: base.Lat + 0.001*float64(i),
				Lng: base.Lng - 0.001*float64(i),
			}}
		}
		out = append(out, z)
	}
	return out
}

func (s *SimulatedSource) Poll(ctx context.Context, zoneID string) (*contracts.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zone, ok := s.zones[zoneID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, zoneID)
	}

	s.mu.Lock()
	hit := s.rng.Float64() < s.probability
	var (
		sc         Scenario
		dLat, dLng float64
	)
	if hit {
		sc = s.scenarios[s.rng.IntN(len(s.scenarios))]
		dLat = (s.rng.Float64()*2 - 1) * 0.01
		dLng = (s.rng.Float64()*2 - 1) * 0.01
	}
	s.mu.Unlock()

	if !hit {
		return nil, nil
	}

	now := s.clock().UTC()
	return &contracts.Observation{
		ZoneID:      zoneID,
		Category:    sc.Category,
		Name:        sc.Name,
		Confidence:  sc.Confidence,
		Description: sc.Description,
		Coordinates: contracts.Coordinates{
			Lat: zone.Coordinates.Lat + dLat,
			Lng: zone.Coordinates.Lng + dLng,
		},
		EvidenceRef: fmt.Sprintf("neofs://neoguard/incident_%s_%d.mp4", zoneID, now.Unix()),
		DetectedAt:  now,
	}, nil
}

// NetworkState reports a simulated fleet of three units.
func (s *SimulatedSource) NetworkState(ctx context.Context) (contracts.NetworkState, error) {
	if err := ctx.Err(); err != nil {
		return contracts.NetworkState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return contracts.NetworkState{
		TotalUnits:     3,
		ActiveUnits:    2 + s.rng.IntN(2),
		AverageBattery: 60 + s.rng.IntN(41),
		Status:         "operational",
	}, nil
}
