// Package testhelpers provides an in-memory implementation of every store
// interface in databases, for service and handler tests.
package testhelpers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// ErrInjected is a convenient error for FailOn
var ErrInjected = errors.New("injected failure")

type lease struct {
	holder    string
	expiresAt time.Time
}

type state struct {
	issues           map[primitive.ObjectID]models.Issue
	reports          map[primitive.ObjectID]models.Report
	events           []models.ReputationEvent
	communities      map[string]models.Community
	users            map[primitive.ObjectID]models.User
	notifications    []models.Notification
	verifications    []models.CommunityVerification
	workOrders       map[primitive.ObjectID]models.WorkOrder
	inspections      map[primitive.ObjectID]models.Inspection
	resourceRequests map[primitive.ObjectID]models.ResourceRequest
	locks            map[string]lease
}

func newState() state {
	return state{
		issues:           map[primitive.ObjectID]models.Issue{},
		reports:          map[primitive.ObjectID]models.Report{},
		communities:      map[string]models.Community{},
		users:            map[primitive.ObjectID]models.User{},
		workOrders:       map[primitive.ObjectID]models.WorkOrder{},
		inspections:      map[primitive.ObjectID]models.Inspection{},
		resourceRequests: map[primitive.ObjectID]models.ResourceRequest{},
		locks:            map[string]lease{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the maps and slice headers. Stored values are never mutated
// in place, so sharing their inner slices is safe.
func (s state) clone() state {
	return state{
		issues:           cloneMap(s.issues),
		reports:          cloneMap(s.reports),
		events:           append([]models.ReputationEvent(nil), s.events...),
		communities:      cloneMap(s.communities),
		users:            cloneMap(s.users),
		notifications:    append([]models.Notification(nil), s.notifications...),
		verifications:    append([]models.CommunityVerification(nil), s.verifications...),
		workOrders:       cloneMap(s.workOrders),
		inspections:      cloneMap(s.inspections),
		resourceRequests: cloneMap(s.resourceRequests),
		locks:            cloneMap(s.locks),
	}
}

// Store is a goroutine safe in-memory database. Its WithTransaction rolls
// every collection back when fn fails.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	st       state
	failures map[string]error
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{st: newState(), failures: map[string]error{}}
}

// FailOn makes the named method, e.g. "Events.Append", return err until cleared
// with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

// WithTransaction serializes transactions and restores the previous state
// when fn returns an error
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Issues returns the issue collection
func (s *Store) Issues() *IssueStore { return &IssueStore{s} }

// Reports returns the report collection
func (s *Store) Reports() *ReportStore { return &ReportStore{s} }

// Events returns the reputation event ledger
func (s *Store) Events() *EventStore { return &EventStore{s} }

// Communities returns the community collection
func (s *Store) Communities() *CommunityStore { return &CommunityStore{s} }

// Users returns the user collection
func (s *Store) Users() *UserStore { return &UserStore{s} }

// Notifications returns the notification collection
func (s *Store) Notifications() *NotificationStore { return &NotificationStore{s} }

// Verifications returns the community verification collection
func (s *Store) Verifications() *VerificationStore { return &VerificationStore{s} }

// WorkOrders returns the work order collection
func (s *Store) WorkOrders() *WorkOrderStore { return &WorkOrderStore{s} }

// Inspections returns the inspection collection
func (s *Store) Inspections() *InspectionStore { return &InspectionStore{s} }

// ResourceRequests returns the resource request collection
func (s *Store) ResourceRequests() *ResourceRequestStore { return &ResourceRequestStore{s} }

// Locks returns the scheduler lock collection
func (s *Store) Locks() *LockStore { return &LockStore{s} }

// Stores returns every collection, with s as the transactor
func (s *Store) Stores() databases.Stores {
	return databases.Stores{
		Issues:           s.Issues(),
		Reports:          s.Reports(),
		Events:           s.Events(),
		Communities:      s.Communities(),
		Users:            s.Users(),
		Notifications:    s.Notifications(),
		Verifications:    s.Verifications(),
		WorkOrders:       s.WorkOrders(),
		Inspections:      s.Inspections(),
		ResourceRequests: s.ResourceRequests(),
		Locks:            s.Locks(),
		Tx:               s,
	}
}

var (
	_ databases.IssueDatabase           = (*IssueStore)(nil)
	_ databases.ReportDatabase          = (*ReportStore)(nil)
	_ databases.ReputationEventDatabase = (*EventStore)(nil)
	_ databases.CommunityDatabase       = (*CommunityStore)(nil)
	_ databases.UserDatabase            = (*UserStore)(nil)
	_ databases.NotificationDatabase    = (*NotificationStore)(nil)
	_ databases.VerificationDatabase    = (*VerificationStore)(nil)
	_ databases.WorkOrderDatabase       = (*WorkOrderStore)(nil)
	_ databases.InspectionDatabase      = (*InspectionStore)(nil)
	_ databases.ResourceRequestDatabase = (*ResourceRequestStore)(nil)
	_ databases.SchedulerLockDatabase   = (*LockStore)(nil)
	_ databases.Transactor              = (*Store)(nil)
)

// applySet overlays a $set document on doc the way mongo would, through a
// bson round trip
func applySet[T any](doc T, set bson.M) (T, error) {
	var out T
	raw, err := bson.Marshal(doc)
	if err != nil {
		return out, err
	}
	m := bson.M{}
	if err := bson.Unmarshal(raw, &m); err != nil {
		return out, err
	}
	for k, v := range set {
		m[k] = v
	}
	m["updatedAt"] = time.Now().UTC().Truncate(time.Millisecond)
	if raw, err = bson.Marshal(m); err != nil {
		return out, err
	}
	err = bson.Unmarshal(raw, &out)
	return out, err
}

// updateIfStatus mirrors the conditional update in databases: a missing
// document is NotFound and a status mismatch is a Conflict
func updateIfStatus[T any](coll map[primitive.ObjectID]T, resource string, id primitive.ObjectID, status func(T) string, expect string, set bson.M) error {
	doc, ok := coll[id]
	if !ok {
		return apierrors.NotFound(resource, id.Hex())
	}
	if status(doc) != expect {
		return apierrors.Conflict("%s %s is %s, expected %s", resource, id.Hex(), status(doc), expect)
	}
	updated, err := applySet(doc, set)
	if err != nil {
		return err
	}
	coll[id] = updated
	return nil
}

func paginate[T any](items []T, page databases.Page) []T {
	page = page.Normalize()
	start := page.Skip()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// IssueStore implements databases.IssueDatabase
type IssueStore struct{ s *Store }

// Insert stores issue
func (i *IssueStore) Insert(_ context.Context, issue models.Issue) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if err := i.s.fail("Issues.Insert"); err != nil {
		return err
	}
	if _, ok := i.s.st.issues[issue.ID]; ok {
		return errors.New("duplicate issue id")
	}
	i.s.st.issues[issue.ID] = issue
	return nil
}

// FindByID returns a copy of the issue
func (i *IssueStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if err := i.s.fail("Issues.FindByID"); err != nil {
		return nil, err
	}
	issue, ok := i.s.st.issues[id]
	if !ok {
		return nil, apierrors.NotFound("issue", id.Hex())
	}
	return &issue, nil
}

// FindByIDs returns the issues that exist among ids
func (i *IssueStore) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Issue, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	out := map[primitive.ObjectID]models.Issue{}
	for _, id := range ids {
		if issue, ok := i.s.st.issues[id]; ok {
			out[id] = issue
		}
	}
	return out, nil
}

func matchIssue(f databases.IssueFilter, is models.Issue) bool {
	return (f.Status == "" || is.Status == f.Status) &&
		(f.Category == "" || is.Category == f.Category) &&
		(f.Priority == "" || is.Priority == f.Priority) &&
		(f.DistrictID == "" || is.DistrictID == f.DistrictID) &&
		(f.ReportedBy == nil || is.ReportedBy == *f.ReportedBy)
}

// List filters issues, newest first
func (i *IssueStore) List(_ context.Context, filter databases.IssueFilter, page databases.Page) ([]models.Issue, int64, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if err := i.s.fail("Issues.List"); err != nil {
		return nil, 0, err
	}
	matched := []models.Issue{}
	for _, is := range i.s.st.issues {
		if matchIssue(filter, is) {
			matched = append(matched, is)
		}
	}
	sort.Slice(matched, func(a, b int) bool {
		if !matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].CreatedAt.After(matched[b].CreatedAt)
		}
		return matched[a].ID.Hex() > matched[b].ID.Hex()
	})
	return paginate(matched, page), int64(len(matched)), nil
}

// FindInBox returns issues inside box
func (i *IssueStore) FindInBox(_ context.Context, box databases.BoundingBox, limit int) ([]models.Issue, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	out := []models.Issue{}
	for _, is := range i.s.st.issues {
		l := is.Location
		if l.Lat >= box.MinLat && l.Lat <= box.MaxLat && l.Lng >= box.MinLng && l.Lng <= box.MaxLng {
			out = append(out, is)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpdateIfStatus applies set when the issue is in status expect
func (i *IssueStore) UpdateIfStatus(_ context.Context, id primitive.ObjectID, expect models.IssueStatus, set bson.M) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if err := i.s.fail("Issues.UpdateIfStatus"); err != nil {
		return err
	}
	return updateIfStatus(i.s.st.issues, "issue", id, func(is models.Issue) string { return string(is.Status) }, string(expect), set)
}

// ToggleUpvote adds or removes user from the upvote set
func (i *IssueStore) ToggleUpvote(_ context.Context, id, user primitive.ObjectID) (models.UpvoteResult, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	issue, ok := i.s.st.issues[id]
	if !ok {
		return models.UpvoteResult{}, apierrors.NotFound("issue", id.Hex())
	}
	upvotes := make([]primitive.ObjectID, 0, len(issue.Upvotes)+1)
	upvoted := true
	for _, u := range issue.Upvotes {
		if u == user {
			upvoted = false
			continue
		}
		upvotes = append(upvotes, u)
	}
	if upvoted {
		upvotes = append(upvotes, user)
	}
	issue.Upvotes = upvotes
	i.s.st.issues[id] = issue
	return models.UpvoteResult{Upvoted: upvoted, Count: len(upvotes)}, nil
}

// AddComment appends comment
func (i *IssueStore) AddComment(_ context.Context, id primitive.ObjectID, comment models.Comment) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	issue, ok := i.s.st.issues[id]
	if !ok {
		return apierrors.NotFound("issue", id.Hex())
	}
	comments := append(append([]models.Comment{}, issue.Comments...), comment)
	issue.Comments = comments
	i.s.st.issues[id] = issue
	return nil
}

// CountByDistrict counts the district's issues, optionally in one status
func (i *IssueStore) CountByDistrict(_ context.Context, districtID string, status models.IssueStatus) (int64, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	var n int64
	for _, is := range i.s.st.issues {
		if is.DistrictID == districtID && (status == "" || is.Status == status) {
			n++
		}
	}
	return n, nil
}

// ReportStore implements databases.ReportDatabase
type ReportStore struct{ s *Store }

// Insert stores report
func (r *ReportStore) Insert(_ context.Context, report models.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Reports.Insert"); err != nil {
		return err
	}
	r.s.st.reports[report.ID] = report
	return nil
}

// FindByID returns a copy of the report
func (r *ReportStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.st.reports[id]
	if !ok {
		return nil, apierrors.NotFound("report", id.Hex())
	}
	return &report, nil
}

func (r *ReportStore) filter(keep func(models.Report) bool, asc bool) []models.Report {
	out := []models.Report{}
	for _, rep := range r.s.st.reports {
		if keep(rep) {
			out = append(out, rep)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if asc {
			return out[a].SubmittedAt.Before(out[b].SubmittedAt)
		}
		return out[a].SubmittedAt.After(out[b].SubmittedAt)
	})
	return out
}

// ListPending returns pending reports, oldest first
func (r *ReportStore) ListPending(_ context.Context, reportType models.ReportType) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(rep models.Report) bool {
		return rep.Status == models.ReportPending && (reportType == "" || rep.ReportType == reportType)
	}, true), nil
}

// ListByIssue returns the issue's reports, newest first
func (r *ReportStore) ListByIssue(_ context.Context, issueID primitive.ObjectID) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(rep models.Report) bool { return rep.Issue == issueID }, false), nil
}

// CountPending counts pending reports of one type on an issue
func (r *ReportStore) CountPending(_ context.Context, issueID primitive.ObjectID, reportType models.ReportType) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, rep := range r.s.st.reports {
		if rep.Issue == issueID && rep.ReportType == reportType && rep.Status == models.ReportPending {
			n++
		}
	}
	return n, nil
}

// Decide closes a pending report
func (r *ReportStore) Decide(_ context.Context, id primitive.ObjectID, status models.ReportStatus, reviewer primitive.ObjectID, remarks string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Reports.Decide"); err != nil {
		return err
	}
	return updateIfStatus(r.s.st.reports, "report", id, func(rep models.Report) string { return string(rep.Status) }, string(models.ReportPending), bson.M{
		"status":        status,
		"reviewedBy":    reviewer,
		"reviewedAt":    at,
		"reviewRemarks": remarks,
	})
}

// EventStore implements databases.ReputationEventDatabase
type EventStore struct{ s *Store }

// Append stores event unless its idempotency key was seen before
func (e *EventStore) Append(_ context.Context, event models.ReputationEvent) (bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.s.fail("Events.Append"); err != nil {
		return false, err
	}
	if event.IdempotencyKey != "" {
		for _, ev := range e.s.st.events {
			if ev.IdempotencyKey == event.IdempotencyKey {
				return false, nil
			}
		}
	}
	e.s.st.events = append(e.s.st.events, event)
	return true, nil
}

// All returns every stored event in insertion order
func (e *EventStore) All() []models.ReputationEvent {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return append([]models.ReputationEvent{}, e.s.st.events...)
}

// TotalForUser sums the user's points, within districtID when set
func (e *EventStore) TotalForUser(_ context.Context, userID primitive.ObjectID, districtID string) (int, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	total := 0
	for _, ev := range e.s.st.events {
		if ev.UserID == userID && (districtID == "" || ev.DistrictID == districtID) {
			total += ev.Points
		}
	}
	return total, nil
}

// TotalsByDistrict folds the district's events per user
func (e *EventStore) TotalsByDistrict(_ context.Context, districtID string) ([]models.UserTotal, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.s.fail("Events.TotalsByDistrict"); err != nil {
		return nil, err
	}
	byUser := map[primitive.ObjectID]*models.UserTotal{}
	order := []primitive.ObjectID{}
	for _, ev := range e.s.st.events {
		if ev.DistrictID != districtID {
			continue
		}
		t, ok := byUser[ev.UserID]
		if !ok {
			t = &models.UserTotal{UserID: ev.UserID}
			byUser[ev.UserID] = t
			order = append(order, ev.UserID)
		}
		t.TotalRP += ev.Points
		if ev.CreatedAt.After(t.ReachedAt) {
			t.ReachedAt = ev.CreatedAt
		}
	}
	out := make([]models.UserTotal, 0, len(order))
	for _, id := range order {
		out = append(out, *byUser[id])
	}
	return out, nil
}

// ListForUser returns the user's events, newest first
func (e *EventStore) ListForUser(_ context.Context, userID primitive.ObjectID, page databases.Page) ([]models.ReputationEvent, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	out := []models.ReputationEvent{}
	for _, ev := range e.s.st.events {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return paginate(out, page), nil
}

// CommunityStore implements databases.CommunityDatabase
type CommunityStore struct{ s *Store }

// FindOrCreate stores seed unless its district code exists
func (c *CommunityStore) FindOrCreate(_ context.Context, seed models.Community) (*models.Community, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.fail("Communities.FindOrCreate"); err != nil {
		return nil, err
	}
	existing, ok := c.s.st.communities[seed.DistrictCode]
	if !ok {
		c.s.st.communities[seed.DistrictCode] = seed
		existing = seed
	}
	return &existing, nil
}

// FindByCode returns a copy of the community
func (c *CommunityStore) FindByCode(_ context.Context, code string) (*models.Community, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	community, ok := c.s.st.communities[code]
	if !ok {
		return nil, apierrors.NotFound("community", code)
	}
	return &community, nil
}

// List returns public communities without their messages
func (c *CommunityStore) List(_ context.Context, state string, page databases.Page) ([]models.Community, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := []models.Community{}
	for _, community := range c.s.st.communities {
		if community.Settings.IsPublic && (state == "" || community.State == state) {
			community.Messages = nil
			out = append(out, community)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Stats.TotalMembers != out[b].Stats.TotalMembers {
			return out[a].Stats.TotalMembers > out[b].Stats.TotalMembers
		}
		return out[a].DistrictCode < out[b].DistrictCode
	})
	return paginate(out, page), nil
}

// AddMember appends member unless present
func (c *CommunityStore) AddMember(_ context.Context, code string, member models.Member) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	community, ok := c.s.st.communities[code]
	if !ok {
		return false, apierrors.NotFound("community", code)
	}
	if _, present := community.Member(member.User); present {
		return false, nil
	}
	community.Members = append(append([]models.Member{}, community.Members...), member)
	community.Stats.TotalMembers++
	c.s.st.communities[code] = community
	return true, nil
}

// RemoveMember pulls user if present
func (c *CommunityStore) RemoveMember(_ context.Context, code string, user primitive.ObjectID) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	community, ok := c.s.st.communities[code]
	if !ok {
		return false, apierrors.NotFound("community", code)
	}
	members := []models.Member{}
	for _, m := range community.Members {
		if m.User != user {
			members = append(members, m)
		}
	}
	if len(members) == len(community.Members) {
		return false, nil
	}
	community.Members = members
	community.Stats.TotalMembers--
	c.s.st.communities[code] = community
	return true, nil
}

// SetMemberRole updates the role of user if present
func (c *CommunityStore) SetMemberRole(_ context.Context, code string, user primitive.ObjectID, role models.MemberRole) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	community, ok := c.s.st.communities[code]
	if !ok {
		return false, apierrors.NotFound("community", code)
	}
	members := append([]models.Member{}, community.Members...)
	for i := range members {
		if members[i].User == user {
			members[i].Role = role
			community.Members = members
			c.s.st.communities[code] = community
			return true, nil
		}
	}
	return false, nil
}

// AppendMessage appends msg keeping the newest MaxCommunityMessages
func (c *CommunityStore) AppendMessage(_ context.Context, code string, msg models.Message) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	community, ok := c.s.st.communities[code]
	if !ok {
		return apierrors.NotFound("community", code)
	}
	msgs := append(append([]models.Message{}, community.Messages...), msg)
	if over := len(msgs) - models.MaxCommunityMessages; over > 0 {
		msgs = msgs[over:]
	}
	community.Messages = msgs
	c.s.st.communities[code] = community
	return nil
}

// IncrementStat bumps a stats counter, ignoring unknown districts
func (c *CommunityStore) IncrementStat(_ context.Context, code, stat string, delta int) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.fail("Communities.IncrementStat"); err != nil {
		return err
	}
	community, ok := c.s.st.communities[code]
	if !ok {
		return nil
	}
	switch stat {
	case databases.StatIssuesReported:
		community.Stats.TotalIssuesReported += delta
	case databases.StatIssuesResolved:
		community.Stats.TotalIssuesResolved += delta
	case "stats.totalMembers":
		community.Stats.TotalMembers += delta
	default:
		return errors.New("unknown stat " + stat)
	}
	c.s.st.communities[code] = community
	return nil
}

// SetStats replaces the counters
func (c *CommunityStore) SetStats(_ context.Context, code string, stats models.CommunityStats) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	community, ok := c.s.st.communities[code]
	if !ok {
		return nil
	}
	community.Stats = stats
	c.s.st.communities[code] = community
	return nil
}

// Codes lists every stored district code
func (c *CommunityStore) Codes() []string {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := []string{}
	for code := range c.s.st.communities {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// UserStore implements databases.UserDatabase
type UserStore struct{ s *Store }

// Insert stores user; emails are unique
func (u *UserStore) Insert(_ context.Context, user models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, existing := range u.s.st.users {
		if existing.Email == user.Email {
			return apierrors.Conflict("email %s is already registered", user.Email)
		}
	}
	u.s.st.users[user.ID] = user
	return nil
}

// FindByID returns a copy of the user
func (u *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.st.users[id]
	if !ok {
		return nil, apierrors.NotFound("user", id.Hex())
	}
	return &user, nil
}

// FindByEmail looks a user up case insensitively
func (u *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range u.s.st.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, apierrors.NotFound("user", email)
}

// FindByIDs returns the users that exist among ids
func (u *UserStore) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	out := map[primitive.ObjectID]models.User{}
	for _, id := range ids {
		if user, ok := u.s.st.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

// SetDistrict changes the user's home district
func (u *UserStore) SetDistrict(_ context.Context, id primitive.ObjectID, districtID string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.st.users[id]
	if !ok {
		return apierrors.NotFound("user", id.Hex())
	}
	user.DistrictID = districtID
	u.s.st.users[id] = user
	return nil
}

// NotificationStore implements databases.NotificationDatabase
type NotificationStore struct{ s *Store }

// Insert stores n
func (n *NotificationStore) Insert(_ context.Context, note models.Notification) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if err := n.s.fail("Notifications.Insert"); err != nil {
		return err
	}
	n.s.st.notifications = append(n.s.st.notifications, note)
	return nil
}

// All returns every stored notification in insertion order
func (n *NotificationStore) All() []models.Notification {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	return append([]models.Notification{}, n.s.st.notifications...)
}

// ListForUser returns the recipient's notifications, newest first
func (n *NotificationStore) ListForUser(_ context.Context, recipient primitive.ObjectID, unreadOnly bool, page databases.Page) ([]models.Notification, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	out := []models.Notification{}
	for _, note := range n.s.st.notifications {
		if note.Recipient == recipient && (!unreadOnly || !note.Read) {
			out = append(out, note)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return paginate(out, page), nil
}

// MarkRead flags one of the recipient's notifications as read
func (n *NotificationStore) MarkRead(_ context.Context, id, recipient primitive.ObjectID) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for i, note := range n.s.st.notifications {
		if note.ID == id && note.Recipient == recipient {
			notes := append([]models.Notification{}, n.s.st.notifications...)
			notes[i].Read = true
			n.s.st.notifications = notes
			return nil
		}
	}
	return apierrors.NotFound("notification", id.Hex())
}

// VerificationStore implements databases.VerificationDatabase
type VerificationStore struct{ s *Store }

// Insert stores one vote per user per issue
func (v *VerificationStore) Insert(_ context.Context, cv models.CommunityVerification) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, existing := range v.s.st.verifications {
		if existing.Issue == cv.Issue && existing.User == cv.User {
			return apierrors.Conflict("user has already verified issue %s", cv.Issue.Hex())
		}
	}
	v.s.st.verifications = append(v.s.st.verifications, cv)
	return nil
}

// Tally counts the votes on an issue
func (v *VerificationStore) Tally(_ context.Context, issueID primitive.ObjectID) (models.VerificationTally, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	correct, incorrect := 0, 0
	for _, cv := range v.s.st.verifications {
		if cv.Issue != issueID {
			continue
		}
		if cv.Verdict == models.VerdictCorrect {
			correct++
		} else {
			incorrect++
		}
	}
	return models.NewVerificationTally(correct, incorrect), nil
}

func matchTask(f databases.TaskFilter, status string, priority models.Priority, assignedTo *primitive.ObjectID, owner primitive.ObjectID, related *primitive.ObjectID) bool {
	return (f.Status == "" || f.Status == status) &&
		(f.Priority == "" || f.Priority == string(priority)) &&
		(f.AssignedTo == nil || (assignedTo != nil && *assignedTo == *f.AssignedTo)) &&
		(f.CreatedBy == nil || owner == *f.CreatedBy) &&
		(f.RelatedIssue == nil || (related != nil && *related == *f.RelatedIssue))
}

func listTasks[T any](coll map[primitive.ObjectID]T, keep func(T) bool, created func(T) time.Time, page databases.Page) ([]T, int64) {
	out := []T{}
	for _, t := range coll {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return created(out[a]).After(created(out[b])) })
	return paginate(out, page), int64(len(out))
}

// WorkOrderStore implements databases.WorkOrderDatabase
type WorkOrderStore struct{ s *Store }

// Insert stores wo
func (w *WorkOrderStore) Insert(_ context.Context, wo models.WorkOrder) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.st.workOrders[wo.ID] = wo
	return nil
}

// FindByID returns a copy of the work order
func (w *WorkOrderStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.WorkOrder, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	wo, ok := w.s.st.workOrders[id]
	if !ok {
		return nil, apierrors.NotFound("work order", id.Hex())
	}
	return &wo, nil
}

// List filters work orders, newest first
func (w *WorkOrderStore) List(_ context.Context, filter databases.TaskFilter, page databases.Page) ([]models.WorkOrder, int64, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	items, total := listTasks(w.s.st.workOrders, func(wo models.WorkOrder) bool {
		return matchTask(filter, string(wo.Status), wo.Priority, wo.AssignedTo, wo.CreatedBy, wo.RelatedIssue)
	}, func(wo models.WorkOrder) time.Time { return wo.CreatedAt }, page)
	return items, total, nil
}

// UpdateIfStatus applies set when the work order is in status expect
func (w *WorkOrderStore) UpdateIfStatus(_ context.Context, id primitive.ObjectID, expect models.WorkOrderStatus, set bson.M) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return updateIfStatus(w.s.st.workOrders, "work order", id, func(wo models.WorkOrder) string { return string(wo.Status) }, string(expect), set)
}

// InspectionStore implements databases.InspectionDatabase
type InspectionStore struct{ s *Store }

// Insert stores in
func (i *InspectionStore) Insert(_ context.Context, in models.Inspection) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	i.s.st.inspections[in.ID] = in
	return nil
}

// FindByID returns a copy of the inspection
func (i *InspectionStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Inspection, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	in, ok := i.s.st.inspections[id]
	if !ok {
		return nil, apierrors.NotFound("inspection", id.Hex())
	}
	return &in, nil
}

// List filters inspections, newest first
func (i *InspectionStore) List(_ context.Context, filter databases.TaskFilter, page databases.Page) ([]models.Inspection, int64, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	items, total := listTasks(i.s.st.inspections, func(in models.Inspection) bool {
		return matchTask(filter, string(in.Status), in.Priority, in.AssignedTo, in.CreatedBy, in.RelatedIssue)
	}, func(in models.Inspection) time.Time { return in.CreatedAt }, page)
	return items, total, nil
}

// UpdateIfStatus applies set when the inspection is in status expect
func (i *InspectionStore) UpdateIfStatus(_ context.Context, id primitive.ObjectID, expect models.InspectionStatus, set bson.M) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	return updateIfStatus(i.s.st.inspections, "inspection", id, func(in models.Inspection) string { return string(in.Status) }, string(expect), set)
}

// DueForReminder finds assigned open inspections in [from, to) not yet reminded
func (i *InspectionStore) DueForReminder(_ context.Context, from, to time.Time) ([]models.Inspection, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if err := i.s.fail("Inspections.DueForReminder"); err != nil {
		return nil, err
	}
	out := []models.Inspection{}
	for _, in := range i.s.st.inspections {
		open := in.Status == models.InspectionScheduled || in.Status == models.InspectionRescheduled
		inWindow := !in.ScheduledDate.Before(from) && in.ScheduledDate.Before(to)
		if open && inWindow && in.AssignedTo != nil && in.ReminderSentAt == nil {
			out = append(out, in)
		}
	}
	return out, nil
}

// MarkReminded stamps reminderSentAt
func (i *InspectionStore) MarkReminded(_ context.Context, id primitive.ObjectID, at time.Time) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	in, ok := i.s.st.inspections[id]
	if !ok {
		return apierrors.NotFound("inspection", id.Hex())
	}
	in.ReminderSentAt = &at
	i.s.st.inspections[id] = in
	return nil
}

// ResourceRequestStore implements databases.ResourceRequestDatabase
type ResourceRequestStore struct{ s *Store }

// Insert stores rr
func (r *ResourceRequestStore) Insert(_ context.Context, rr models.ResourceRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.resourceRequests[rr.ID] = rr
	return nil
}

// FindByID returns a copy of the resource request
func (r *ResourceRequestStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.ResourceRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rr, ok := r.s.st.resourceRequests[id]
	if !ok {
		return nil, apierrors.NotFound("resource request", id.Hex())
	}
	return &rr, nil
}

// List filters resource requests, newest first
func (r *ResourceRequestStore) List(_ context.Context, filter databases.TaskFilter, page databases.Page) ([]models.ResourceRequest, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items, total := listTasks(r.s.st.resourceRequests, func(rr models.ResourceRequest) bool {
		return matchTask(filter, string(rr.Status), rr.Priority, nil, rr.RequestedBy, rr.RelatedIssue)
	}, func(rr models.ResourceRequest) time.Time { return rr.CreatedAt }, page)
	return items, total, nil
}

// UpdateIfStatus applies set when the request is in status expect
func (r *ResourceRequestStore) UpdateIfStatus(_ context.Context, id primitive.ObjectID, expect models.ResourceRequestStatus, set bson.M) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return updateIfStatus(r.s.st.resourceRequests, "resource request", id, func(rr models.ResourceRequest) string { return string(rr.Status) }, string(expect), set)
}

// LockStore implements databases.SchedulerLockDatabase
type LockStore struct{ s *Store }

// TryAcquireLock takes the lease when free, expired or already ours
func (l *LockStore) TryAcquireLock(_ context.Context, job, holder string, ttl time.Duration) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	now := time.Now().UTC()
	current, ok := l.s.st.locks[job]
	if ok && current.holder != holder && current.expiresAt.After(now) {
		return false, nil
	}
	l.s.st.locks[job] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseLock expires the lease if holder owns it
func (l *LockStore) ReleaseLock(_ context.Context, job, holder string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if current, ok := l.s.st.locks[job]; ok && current.holder == holder {
		l.s.st.locks[job] = lease{holder: holder}
	}
	return nil
}
