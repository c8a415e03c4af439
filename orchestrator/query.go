package orchestrator

import (
	"fmt"

	"go.dedis.ch/locsim/clientdriver"
	"go.dedis.ch/locsim/log"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/predictor"
	"go.dedis.ch/locsim/scenario"
)

// handleTestQuery implements `TestQuery`: for every target server
// resolved by (Group,Index,Count), skip it if uninitialized; otherwise run
// the live profile search, compute the ground-truth prediction, and compare
// both the result set and the covered-servers set.
func (o *Orchestrator) handleTestQuery(c *scenario.TestQueryCommand) error {
	targets := o.Ctx.World.ServerRange(c.Group, c.Index, c.Count)
	if len(targets) == 0 {
		return &ResolutionError{Line: c.Line(), Kind: "server range", Detail: fmt.Sprintf("%s %d %d matches nothing", c.Group, c.Index, c.Count)}
	}

	for _, target := range targets {
		if !target.Initialized() {
			log.Lvl3("orchestrator: skipping TestQuery on uninitialized server ", target.Name)
			continue
		}

		q := predictor.ProfileQuery{
			NameFilter:    c.NameFilter,
			TypeFilter:    c.TypeFilter,
			HasLocation:   c.HasLocation,
			Location:      model.Location{Lat: c.Lat, Lon: c.Lon},
			Radius:        c.Radius,
			IncludeImages: c.IncludeImages,
		}
		expected, coveredExpected := predictor.PredictProfileSearch(o.Ctx.World, o.Registry, target, q)
		localCount := 0
		for _, r := range expected {
			if r.IsHosted {
				localCount++
			}
		}

		contact := clientdriver.Contact{
			Host:            "127.0.0.1",
			NonCustomerPort: target.Port(model.PortOffsetClientBase),
			CustomerPort:    target.Port(model.PortOffsetClientCustomer),
		}
		real, coveredReal, err := clientdriver.ProfileSearch(contact, c.NameFilter, c.TypeFilter, c.HasLocation, q.Location, c.Radius, c.IncludeImages, false)
		if err != nil {
			return err
		}

		_, maxTotal := clientdriver.ProfileSearchLimits(c.IncludeImages)
		if o.debugMode {
			log.Lvl2("orchestrator: TestQuery ", target.Name, " expected=", len(expected), " real=", len(real))
		}
		if err := predictor.CompareProfileResults(target.Name, expected, real, maxTotal); err != nil {
			return err
		}
		if err := predictor.CompareCoveredServers(target.Name, coveredExpected, coveredReal, maxTotal, localCount); err != nil {
			return err
		}
	}
	return nil
}

// handleTestQueryActivity implements `TestQueryActivity`, the
// activity analogue of handleTestQuery.
func (o *Orchestrator) handleTestQueryActivity(c *scenario.TestQueryActivityCommand) error {
	targets := o.Ctx.World.ServerRange(c.Group, c.Index, c.Count)
	if len(targets) == 0 {
		return &ResolutionError{Line: c.Line(), Kind: "server range", Detail: fmt.Sprintf("%s %d %d matches nothing", c.Group, c.Index, c.Count)}
	}

	for _, target := range targets {
		if !target.Initialized() {
			log.Lvl3("orchestrator: skipping TestQueryActivity on uninitialized server ", target.Name)
			continue
		}

		q := predictor.ActivityQuery{
			TypeFilter:             c.TypeFilter,
			HasStartNotAfter:       c.HasStartNotAfter,
			StartNotAfter:          c.StartNotAfter,
			HasExpirationNotBefore: c.HasExpirationNotBefore,
			ExpirationNotBefore:    c.ExpirationNotBefore,
			HasLocation:            c.HasLocation,
			Location:               model.Location{Lat: c.Lat, Lon: c.Lon},
			Radius:                 c.Radius,
		}
		expected, coveredExpected := predictor.PredictActivitySearch(o.Ctx.World, o.Registry, target, q)
		localCount := 0
		for _, r := range expected {
			if r.IsPrimary {
				localCount++
			}
		}

		contact := clientdriver.Contact{
			Host:            "127.0.0.1",
			NonCustomerPort: target.Port(model.PortOffsetClientBase),
			CustomerPort:    target.Port(model.PortOffsetClientCustomer),
		}
		real, coveredReal, err := clientdriver.ActivitySearch(contact, c.TypeFilter, c.HasStartNotAfter, c.StartNotAfter, c.HasExpirationNotBefore, c.ExpirationNotBefore, c.HasLocation, q.Location, c.Radius)
		if err != nil {
			return err
		}

		_, maxTotal := clientdriver.ActivitySearchLimits()
		if o.debugMode {
			log.Lvl2("orchestrator: TestQueryActivity ", target.Name, " expected=", len(expected), " real=", len(real))
		}
		if err := predictor.CompareActivityResults(target.Name, expected, real, maxTotal); err != nil {
			return err
		}
		if err := predictor.CompareCoveredServers(target.Name, coveredExpected, coveredReal, maxTotal, localCount); err != nil {
			return err
		}
	}
	return nil
}
