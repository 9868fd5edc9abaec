package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// DemoLeadGenerator books realistic plumbing jobs across Houston for demos
type DemoLeadGenerator struct {
	jobService *JobService
	logger     *slog.Logger
	interval   time.Duration
	maxJobs    int

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
}

// NewDemoLeadGenerator creates a new demo lead generator
func NewDemoLeadGenerator(jobService *JobService, interval time.Duration, logger *slog.Logger) *DemoLeadGenerator {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DemoLeadGenerator{
		jobService: jobService,
		logger:     logger,
		interval:   interval,
		maxJobs:    25, // Limit to 25 active jobs for demo
	}
}

// Start begins generating leads
func (d *DemoLeadGenerator) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return
	}

	d.isRunning = true
	d.stopChan = make(chan struct{})
	d.logger.Info("Demo lead generator started", "max_jobs", d.maxJobs, "interval", d.interval)

	go d.run(d.stopChan)
}

// Stop stops generating leads
func (d *DemoLeadGenerator) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return
	}

	d.isRunning = false
	close(d.stopChan)
	d.logger.Info("Demo lead generator stopped")
}

// IsRunning returns whether the generator is active
func (d *DemoLeadGenerator) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRunning
}

func (d *DemoLeadGenerator) run(stop <-chan struct{}) {
	for {
		wait := d.interval

		activeJobs, err := d.jobService.GetActiveJobCount(context.Background())
		switch {
		case err != nil:
			d.logger.Error("Failed to get active job count", "error", err)
		case activeJobs >= d.maxJobs:
			d.logger.Info("Demo active job limit reached, pausing generation", "active_jobs", activeJobs, "max_jobs", d.maxJobs)
		default:
			d.createRandomLead()
			// Jitter between half and one and a half intervals
			wait = d.interval/2 + time.Duration(rand.Int63n(int64(d.interval)+1))
		}

		select {
		case <-stop:
			return
		case <-time.After(wait):
		}
	}
}

// createRandomLead books one job from a random customer and location
func (d *DemoLeadGenerator) createRandomLead() {
	location := houstonLocations[rand.Intn(len(houstonLocations))]
	lead := demoLeads[rand.Intn(len(demoLeads))]
	name := demoCustomers[rand.Intn(len(demoCustomers))]

	lat, lng := location.Lat, location.Lng
	req := IntakeRequest{
		Phone:        fmt.Sprintf("+1713555%04d", rand.Intn(10000)),
		Name:         name,
		Address:      location.Name,
		JobType:      lead.JobType,
		Description:  lead.Description,
		Neighborhood: location.Neighborhood,
		Latitude:     &lat,
		Longitude:    &lng,
	}

	result, err := d.jobService.CreateJob(context.Background(), req)
	if err != nil {
		d.logger.Error("Failed to create demo lead", "error", err)
		return
	}
	if result.Job == nil {
		d.logger.Info("Demo lead outside service area", "neighborhood", location.Neighborhood)
		return
	}

	d.logger.Info("Created demo lead",
		"job_id", result.Job.ID,
		"job_type", result.Job.JobType,
		"urgency_level", result.Job.UrgencyLevel,
		"estimated_price", result.Job.EstimatedPrice,
		"neighborhood", location.Neighborhood,
		"matched", result.MatchedPlumber != nil,
	)
}

// DemoLocation is a street-level Houston address
type DemoLocation struct {
	Name         string
	Neighborhood string
	Lat          float64
	Lng          float64
}

var houstonLocations = []DemoLocation{
	// The Heights
	{"1100 Heights Blvd", "The Heights", 29.7900, -95.3980},
	{"White Oak Music Hall", "The Heights", 29.7753, -95.3868},
	{"Heights Mercantile", "The Heights", 29.7784, -95.4034},
	{"19th Street Shops", "The Heights", 29.8030, -95.4010},
	{"Donovan Park", "The Heights", 29.7967, -95.3993},

	// Montrose
	{"Menil Collection", "Montrose", 29.7374, -95.3985},
	{"Rothko Chapel", "Montrose", 29.7376, -95.3963},
	{"Westheimer & Taft", "Montrose", 29.7433, -95.3866},
	{"Cherryhurst Park", "Montrose", 29.7446, -95.3981},
	{"Montrose Collective", "Montrose", 29.7432, -95.3917},

	// Midtown
	{"Midtown Park", "Midtown", 29.7393, -95.3794},
	{"Bagby Street Lofts", "Midtown", 29.7451, -95.3795},
	{"Elizabeth Baldwin Park", "Midtown", 29.7410, -95.3739},
	{"Houston Community College Central", "Midtown", 29.7384, -95.3799},

	// Downtown
	{"Discovery Green", "Downtown", 29.7535, -95.3594},
	{"Market Square Park", "Downtown", 29.7627, -95.3628},
	{"Minute Maid Park", "Downtown", 29.7573, -95.3555},
	{"Hermann Square", "Downtown", 29.7601, -95.3697},
	{"The Shops at Houston Center", "Downtown", 29.7555, -95.3644},

	// Outside the launch zones
	{"Rice Village", "West University", 29.7160, -95.4143},
	{"Memorial City Mall", "Memorial", 29.7812, -95.5410},
}

type demoLead struct {
	JobType     string
	Description string
}

var demoLeads = []demoLead{
	{"emergency", "BURST PIPE in the kitchen, water everywhere!!! 🚨"},
	{"leak", "Leak under the bathroom sink, slow drip into the cabinet"},
	{"leak", "Water heater is leaking from the bottom"},
	{"clog", "Kitchen sink clogged again, standing water"},
	{"clog", "Shower drain clogged and draining very slowly"},
	{"water_heater", "No hot water since this morning"},
	{"installation", "Need a quote to install a new garbage disposal"},
	{"installation", "Install a new faucet in the guest bathroom"},
	{"maintenance", "Annual water heater flush and inspection"},
	{"maintenance", "Low pressure in the upstairs shower"},
	{"emergency", "Sewage backing up into the tub 😱"},
	{"leak", "Toilet backup and it won't stop running"},
	{"emergency", "Flooding in the laundry room, no water shutoff"},
}

var demoCustomers = []string{
	"Maria Garcia", "James Nguyen", "Ashley Johnson", "Carlos Hernandez",
	"Emily Tran", "Michael Brown", "Jessica Williams", "David Martinez",
	"Sarah Patel", "Daniel Lee", "Laura Robinson", "Kevin Okafor",
}

var demoPlumbers = []struct {
	name  string
	index int // houstonLocations entry the plumber starts at
}{
	{"Bayou City Plumbing", 0},
	{"Heights Pipe & Drain", 3},
	{"Montrose Rooter", 5},
	{"Midtown Leak Pros", 10},
	{"Downtown Flow Masters", 14},
	{"Lone Star Water Heaters", 17},
}

// SeedDemoPlumbers registers a small fleet of plumbers spread over the launch zones
func SeedDemoPlumbers(ctx context.Context, plumbers *PlumberService) error {
	for i, p := range demoPlumbers {
		loc := houstonLocations[p.index]
		lat, lng := loc.Lat, loc.Lng
		rating := 4.5 + float64(i%5)/10

		_, err := plumbers.Register(ctx, RegisterPlumberRequest{
			Name:          p.name,
			Phone:         fmt.Sprintf("+1832555%04d", 100+i),
			LicenseNumber: fmt.Sprintf("M-%05d", 41000+i),
			Rating:        &rating,
			Latitude:      &lat,
			Longitude:     &lng,
			ServiceZones:  []string{loc.Neighborhood},
		})
		if err != nil {
			return fmt.Errorf("failed to seed plumber %s: %w", p.name, err)
		}
	}
	return nil
}
