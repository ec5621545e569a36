package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pyquest-jobs/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type milestoneKey struct {
	userID string
	kind   domain.MilestoneKind
	value  int64
	anchor string
}

// memStore is an in-memory Store used by the service tests
type memStore struct {
	mu sync.Mutex

	profiles      map[string]*domain.Profile
	order         []string
	progress      map[string]map[string]int64
	catalog       []domain.Achievement
	unlocked      map[string]map[string]time.Time
	milestones    map[milestoneKey]struct{}
	notifications []domain.Notification
	weeklyXP      map[string]int64
	snapshots     map[string][]domain.LeaderboardEntry
	xpAwards      map[string][]int64
	events        map[string]struct{}

	failApply    map[string]int
	failAward    map[string]bool
	failWeeklyXP map[string]bool
	failUpdate   map[string]bool
	failList     bool
	failNotify   bool
	hearts       map[string]int
}

func newMemStore(catalog []domain.Achievement) *memStore {
	s := &memStore{
		profiles:     make(map[string]*domain.Profile),
		progress:     make(map[string]map[string]int64),
		unlocked:     make(map[string]map[string]time.Time),
		milestones:   make(map[milestoneKey]struct{}),
		weeklyXP:     make(map[string]int64),
		snapshots:    make(map[string][]domain.LeaderboardEntry),
		xpAwards:     make(map[string][]int64),
		events:       make(map[string]struct{}),
		failApply:    make(map[string]int),
		failAward:    make(map[string]bool),
		failWeeklyXP: make(map[string]bool),
		failUpdate:   make(map[string]bool),
		hearts:       make(map[string]int),
	}
	for i, a := range catalog {
		if a.ID == "" {
			a.ID = fmt.Sprintf("ach-%d", i+1)
		}
		s.catalog = append(s.catalog, a)
	}
	return s
}

func (s *memStore) addProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.League == "" {
		p.League = domain.LeagueBronze
	}
	cp := p
	s.profiles[p.ID] = &cp
	s.order = append(s.order, p.ID)
	sort.Strings(s.order)
}

func (s *memStore) profile(id string) domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.profiles[id]
}

func (s *memStore) isUnlocked(userID, slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.catalog {
		if a.Slug == slug {
			_, ok := s.unlocked[userID][a.ID]
			return ok
		}
	}
	return false
}

func (s *memStore) notificationsFor(userID string) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *memStore) ListActiveProfiles(ctx context.Context) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("connection refused")
	}
	var out []domain.Profile
	for _, id := range s.order {
		if p := s.profiles[id]; p.LastActiveDate != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("connection refused")
	}
	out := make([]domain.Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.profiles[id])
	}
	return out, nil
}

func (s *memStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdateStreak(ctx context.Context, u domain.StreakUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate[u.UserID] {
		return false, errors.New("deadlock detected")
	}
	p, ok := s.profiles[u.UserID]
	if !ok {
		return false, domain.ErrProfileNotFound
	}
	if p.StreakEvaluatedOn != nil && !p.StreakEvaluatedOn.Before(u.EvaluatedOn) {
		return false, nil
	}
	p.CurrentStreak = u.CurrentStreak
	p.MaxStreak = u.MaxStreak
	on := u.EvaluatedOn
	p.StreakEvaluatedOn = &on
	return true, nil
}

func (s *memStore) ResetHearts(ctx context.Context, fallback int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.profiles {
		p.Hearts = p.MaxHearts(fallback)
		s.hearts[id] = p.Hearts
	}
	return int64(len(s.profiles)), nil
}

// creditXP adds amount to the profile; callers hold s.mu
func (s *memStore) creditXP(userID string, amount int64) error {
	if amount < 0 {
		return domain.ErrNegativeDelta
	}
	if amount == 0 {
		return nil
	}
	if s.failAward[userID] {
		return errors.New("could not extend relation")
	}
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.TotalXP += amount
	s.xpAwards[userID] = append(s.xpAwards[userID], amount)
	return nil
}

func (s *memStore) UpdateLeague(ctx context.Context, userID string, league domain.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.League = league
	return nil
}

func (s *memStore) ApplyActivity(ctx context.Context, w domain.ActivityWrite) (map[string]int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApply[w.UserID] > 0 {
		s.failApply[w.UserID]--
		return nil, false, errors.New("could not serialize access")
	}
	for _, delta := range w.Deltas {
		if delta < 0 {
			return nil, false, domain.ErrNegativeDelta
		}
	}
	if _, ok := s.events[w.EventID]; ok && w.EventID != "" {
		return nil, false, nil
	}
	if w.ActiveOn != nil {
		p, ok := s.profiles[w.UserID]
		if !ok {
			return nil, false, domain.ErrProfileNotFound
		}
		p.MarkActive(*w.ActiveOn)
	}

	if w.EventID != "" {
		s.events[w.EventID] = struct{}{}
	}
	if s.progress[w.UserID] == nil {
		s.progress[w.UserID] = make(map[string]int64)
	}
	counts := make(map[string]int64, len(w.Deltas))
	for metric, delta := range w.Deltas {
		s.progress[w.UserID][metric] += delta
		counts[metric] = s.progress[w.UserID][metric]
	}
	return counts, true, nil
}

func (s *memStore) ListProgress(ctx context.Context, userID string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.progress[userID]))
	for k, v := range s.progress[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Achievement(nil), s.catalog...), nil
}

func (s *memStore) GetAchievementBySlug(ctx context.Context, slug string) (*domain.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.catalog {
		if a.Slug == slug {
			cp := a
			return &cp, nil
		}
	}
	return nil, domain.ErrAchievementNotFound
}

func (s *memStore) InsertUserAchievement(ctx context.Context, userID, achievementID string, at time.Time, xpReward int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unlocked[userID][achievementID]; ok {
		return false, nil
	}
	if err := s.creditXP(userID, xpReward); err != nil {
		return false, err
	}
	if s.unlocked[userID] == nil {
		s.unlocked[userID] = make(map[string]time.Time)
	}
	s.unlocked[userID][achievementID] = at
	return true, nil
}

func (s *memStore) ListUnlockedAchievementIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.unlocked[userID]))
	for id := range s.unlocked[userID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *memStore) RecordMilestone(ctx context.Context, m domain.Milestone) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := milestoneKey{m.UserID, m.Kind, m.Value, m.AnchoredOn.Format("2006-01-02")}
	if _, ok := s.milestones[key]; ok {
		return false, nil
	}
	if err := s.creditXP(m.UserID, m.XP); err != nil {
		return false, err
	}
	s.milestones[key] = struct{}{}
	return true, nil
}

func (s *memStore) InsertNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNotify {
		return n, errors.New("notifications table locked")
	}
	n.ID = fmt.Sprintf("n-%d", len(s.notifications)+1)
	s.notifications = append(s.notifications, n)
	return n, nil
}

func (s *memStore) InsertNotifications(ctx context.Context, notifications []domain.Notification) ([]domain.Notification, error) {
	out := make([]domain.Notification, 0, len(notifications))
	for _, n := range notifications {
		stored, err := s.InsertNotification(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (s *memStore) WeeklyXP(ctx context.Context, userID string, w domain.WeekWindow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWeeklyXP[userID] {
		return 0, errors.New("statement timeout")
	}
	return s.weeklyXP[userID], nil
}

func (s *memStore) ReplaceWeeklySnapshot(ctx context.Context, w domain.WeekWindow, entries []domain.LeaderboardEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[w.Key()] = append([]domain.LeaderboardEntry(nil), entries...)
	return int64(len(entries)), nil
}

func (s *memStore) GetWeeklySnapshot(ctx context.Context, weekStart time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.snapshots[domain.NewWeekWindow(weekStart).Key()]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]domain.LeaderboardEntry(nil), entries...), nil
}

// memCache is an in-memory SnapshotCache
type memCache struct {
	mu      sync.Mutex
	weeks   map[string][]domain.LeaderboardEntry
	stores  int
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{weeks: make(map[string][]domain.LeaderboardEntry)}
}

func (c *memCache) StoreWeekly(ctx context.Context, w domain.WeekWindow, entries []domain.LeaderboardEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	c.weeks[w.Key()] = append([]domain.LeaderboardEntry(nil), entries...)
	return nil
}

func (c *memCache) GetWeeklyTop(ctx context.Context, weekStart time.Time, n int) ([]domain.LeaderboardEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("redis: connection pool timeout")
	}
	entries, ok := c.weeks[domain.NewWeekWindow(weekStart).Key()]
	if !ok {
		return nil, false, nil
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return append([]domain.LeaderboardEntry(nil), entries...), true, nil
}

// recordingHub captures what would be pushed to websocket clients
type recordingHub struct {
	mu            sync.Mutex
	notifications []domain.Notification
	weeks         map[string]int
}

func newRecordingHub() *recordingHub {
	return &recordingHub{weeks: make(map[string]int)}
}

func (h *recordingHub) PublishNotification(n domain.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, n)
}

func (h *recordingHub) BroadcastWeeklyLeaderboard(weekStart string, entries []domain.LeaderboardEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.weeks[weekStart] = len(entries)
}

// fixture wires the services against in-memory stores
type fixture struct {
	store      *memStore
	cache      *memCache
	hub        *recordingHub
	notifier   *Notifier
	unlocker   *Unlocker
	milestones *Milestones
}

func newFixture() *fixture {
	logger := testLogger()
	store := newMemStore(domain.DefaultCatalog)
	hub := newRecordingHub()
	notifier := NewNotifier(store, logger)
	notifier.SetHub(hub)
	unlocker := NewUnlocker(store, notifier, logger)
	return &fixture{
		store:      store,
		cache:      newMemCache(),
		hub:        hub,
		notifier:   notifier,
		unlocker:   unlocker,
		milestones: NewMilestones(store, unlocker, notifier, logger),
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}
