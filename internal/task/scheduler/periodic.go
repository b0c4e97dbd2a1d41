package scheduler

import (
	"errors"
	"strings"

	"github.com/Vampouille/georchestra/internal/task"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// AddPeriodic registers job to be submitted on schedule with priority p.
//
// Each trigger submits a fresh task through Submit, so the job competes with
// other work in priority order. A trigger is skipped while the previous
// instance is still waiting, paused or running. Registering an existing name
// replaces it.
func (s *Service) AddPeriodic(name, schedule string, p task.Priority, job task.RunFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return task.ErrNilRun
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if !p.Valid() {
		p = task.DefaultPriority
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removePeriodicLocked(name)
	d := &periodicDef{name: name, spec: ps.CronSpec(), priority: p, job: job}
	s.periodic = append(s.periodic, d)
	if s.c == nil {
		// registered on Start
		return nil
	}
	if err := s.addPeriodicCronLocked(d); err != nil {
		s.log.Error("periodic register failed", logx.String("name", name), logx.String("spec", d.spec), logx.Err(err))
		return err
	}
	s.log.Debug("periodic registered", logx.String("name", name), logx.String("spec", d.spec), logx.String("priority", p.String()))
	return nil
}

// RemovePeriodic unregisters a periodic job. Already submitted instances are
// not affected.
func (s *Service) RemovePeriodic(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removePeriodicLocked(strings.TrimSpace(name))
}

func (s *Service) removePeriodicLocked(name string) bool {
	for i, d := range s.periodic {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.periodic = append(s.periodic[:i], s.periodic[i+1:]...)
		return true
	}
	return false
}

func (s *Service) addPeriodicCronLocked(d *periodicDef) error {
	id, err := s.c.AddFunc(d.spec, func() { s.firePeriodic(d) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// firePeriodic submits one instance of d unless the previous one is live.
func (s *Service) firePeriodic(d *periodicDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.lastUUID != "" && s.liveLocked(d.lastUUID) {
		d.skipped++
		s.log.Debug("periodic skipped, previous run still live", logx.String("name", d.name), logx.String("uuid", d.lastUUID))
		return
	}
	t := task.NewFunc(d.name, d.priority, d.job)
	if err := s.submitLocked(t); err != nil {
		s.log.Warn("periodic submit failed", logx.String("name", d.name), logx.Err(err))
		return
	}
	d.fired++
	d.lastUUID = t.Metadata().UUID()
	s.publishCountsLocked()
}

func (s *Service) liveLocked(uuid string) bool {
	if s.ready.get(uuid) != nil {
		return true
	}
	if _, ok := s.paused[uuid]; ok {
		return true
	}
	_, ok := s.running[uuid]
	return ok
}
