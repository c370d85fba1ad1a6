// Package fakecloud is an in-memory, call-recording implementation of every
// collaborator port. Tests use it to assert call order and payloads; the
// CLI uses it for dry runs.
package fakecloud

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// Call is one recorded collaborator invocation.
type Call struct {
	Op   string
	Args []string
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Op
	}
	return c.Op + "(" + strings.Join(c.Args, ",") + ")"
}

// Op names recorded by [Cloud].
const (
	OpMembers         = "members"
	OpCapacity        = "capacity"
	OpSetCapacity     = "set-capacity"
	OpTerminate       = "terminate"
	OpCreateImage     = "create-image"
	OpDescribeImages  = "describe-images"
	OpFindImages      = "find-images"
	OpTagResources    = "tag-resources"
	OpDeregisterImage = "deregister-image"
	OpDeleteSnapshot  = "delete-snapshot"
	OpDescribeStack   = "describe-stack"
	OpUpdateStack     = "update-stack"
	OpEnableRule      = "enable-rule"
	OpDisableRule     = "disable-rule"
	OpStartAutomation = "start-automation"
)

var readOps = map[string]bool{
	OpMembers:        true,
	OpCapacity:       true,
	OpDescribeImages: true,
	OpFindImages:     true,
	OpDescribeStack:  true,
}

var (
	_ domain.FleetAPI        = (*Cloud)(nil)
	_ domain.ImageAPI        = (*Cloud)(nil)
	_ domain.DescriptorAPI   = (*Cloud)(nil)
	_ domain.SubscriptionAPI = (*Cloud)(nil)
	_ domain.AutomationAPI   = (*Cloud)(nil)
)

// AutomationRun is a recorded automation start.
type AutomationRun struct {
	ID       domain.AutomationExecutionID
	Document string
	Params   map[string][]string
}

// Cloud holds fleet, image, descriptor, subscription and automation state.
// The zero value is not usable; call [New].
type Cloud struct {
	mu sync.Mutex

	pools     map[domain.PoolID]*domain.ManagedPool
	images    map[domain.ImageID]*domain.CapturedImage
	snapshots map[domain.SnapshotID]map[string]string
	stacks    map[domain.DeploymentID]*domain.DeploymentDescriptor
	rules     map[string]bool
	runs      []AutomationRun
	calls     []Call
	failures  map[string]error
	failOnce  map[string]error
	updates   map[domain.DeploymentID][][]domain.ParameterUpdate
	hiddenIDs map[domain.ImageID]bool
	seq       int

	// NewImageState is the state of images returned by CreateImage.
	NewImageState domain.ImageState

	// HideNewImages makes created images invisible to describe calls,
	// the way a lagging provider index behaves right after creation.
	HideNewImages bool

	// SnapshotDevices lists the snapshot-backed devices of created images.
	SnapshotDevices []string

	// EphemeralDevices lists devices of created images with no snapshot.
	EphemeralDevices []string

	Now func() time.Time
}

// New returns an empty cloud.
func New() *Cloud {
	return &Cloud{
		pools:           make(map[domain.PoolID]*domain.ManagedPool),
		images:          make(map[domain.ImageID]*domain.CapturedImage),
		snapshots:       make(map[domain.SnapshotID]map[string]string),
		stacks:          make(map[domain.DeploymentID]*domain.DeploymentDescriptor),
		rules:           make(map[string]bool),
		failures:        make(map[string]error),
		failOnce:        make(map[string]error),
		updates:         make(map[domain.DeploymentID][][]domain.ParameterUpdate),
		hiddenIDs:       make(map[domain.ImageID]bool),
		NewImageState:   domain.ImageStatePending,
		SnapshotDevices: []string{"/dev/sda1"},
	}
}

// --- seeding ---

// AddPool registers a pool with the given members.
func (c *Cloud) AddPool(id domain.PoolID, capacity int, members ...domain.InstanceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[id] = &domain.ManagedPool{ID: id, DesiredCapacity: capacity, Members: slices.Clone(members)}
}

// AddImage registers an image; each snapshot-backed device also registers
// its snapshot.
func (c *Cloud) AddImage(img domain.CapturedImage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img.Tags == nil {
		img.Tags = map[string]string{}
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = c.now()
	}
	for _, s := range img.Snapshots() {
		if _, ok := c.snapshots[s]; !ok {
			c.snapshots[s] = map[string]string{}
		}
	}
	cp := img
	c.images[img.ID] = &cp
}

// AddDeployment registers a deployment descriptor.
func (c *Cloud) AddDeployment(id domain.DeploymentID, params ...domain.Parameter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stacks[id] = &domain.DeploymentDescriptor{ID: id, Status: "CREATE_COMPLETE", Parameters: slices.Clone(params)}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (c *Cloud) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// FailOnce makes the next call of op return err.
func (c *Cloud) FailOnce(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOnce[op] = err
}

// SetImageState moves an image to state, as the provider would
// asynchronously.
func (c *Cloud) SetImageState(id domain.ImageID, state domain.ImageState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img, ok := c.images[id]; ok {
		img.State = state
	}
}

// Reveal makes hidden images visible to describe calls.
func (c *Cloud) Reveal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HideNewImages = false
}

// --- inspection ---

// Calls returns every recorded call in order.
func (c *Cloud) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Mutations returns the recorded calls that change provider state.
func (c *Cloud) Mutations() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if !readOps[call.Op] {
			out = append(out, call)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (c *Cloud) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Pool returns a copy of a pool.
func (c *Cloud) Pool(id domain.PoolID) (domain.ManagedPool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[id]
	if !ok {
		return domain.ManagedPool{}, false
	}
	cp := *p
	cp.Members = slices.Clone(p.Members)
	return cp, true
}

// Image returns a copy of a registered image.
func (c *Cloud) Image(id domain.ImageID) (domain.CapturedImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.images[id]
	if !ok {
		return domain.CapturedImage{}, false
	}
	return copyImage(img), true
}

// SnapshotTags returns the tags of a snapshot and whether it exists.
func (c *Cloud) SnapshotTags(id domain.SnapshotID) (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags, ok := c.snapshots[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out, true
}

// Deployment returns a copy of a descriptor.
func (c *Cloud) Deployment(id domain.DeploymentID) (domain.DeploymentDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.stacks[id]
	if !ok {
		return domain.DeploymentDescriptor{}, false
	}
	cp := *d
	cp.Parameters = slices.Clone(d.Parameters)
	return cp, true
}

// Updates returns every parameter list submitted for a deployment.
func (c *Cloud) Updates(id domain.DeploymentID) [][]domain.ParameterUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.updates[id])
}

// RuleEnabled reports whether a subscription rule is enabled.
func (c *Cloud) RuleEnabled(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rules[name]
}

// AutomationRuns returns the recorded automation starts.
func (c *Cloud) AutomationRuns() []AutomationRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.runs)
}

// --- domain.FleetAPI ---

func (c *Cloud) Members(_ context.Context, pool domain.PoolID) ([]domain.InstanceID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpMembers, string(pool)); err != nil {
		return nil, err
	}
	p, ok := c.pools[pool]
	if !ok {
		return nil, fmt.Errorf("spot fleet request %s: %w", pool, domain.ErrNotFound)
	}
	return slices.Clone(p.Members), nil
}

func (c *Cloud) DesiredCapacity(_ context.Context, pool domain.PoolID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpCapacity, string(pool)); err != nil {
		return 0, err
	}
	p, ok := c.pools[pool]
	if !ok {
		return 0, fmt.Errorf("spot fleet request %s: %w", pool, domain.ErrNotFound)
	}
	return p.DesiredCapacity, nil
}

func (c *Cloud) SetDesiredCapacity(_ context.Context, pool domain.PoolID, capacity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpSetCapacity, string(pool), fmt.Sprint(capacity)); err != nil {
		return err
	}
	p, ok := c.pools[pool]
	if !ok {
		return fmt.Errorf("spot fleet request %s: %w", pool, domain.ErrNotFound)
	}
	p.DesiredCapacity = capacity
	return nil
}

func (c *Cloud) Terminate(_ context.Context, instance domain.InstanceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpTerminate, string(instance)); err != nil {
		return err
	}
	for _, p := range c.pools {
		p.Members = slices.DeleteFunc(p.Members, func(id domain.InstanceID) bool { return id == instance })
	}
	return nil
}

// --- domain.ImageAPI ---

func (c *Cloud) CreateImage(_ context.Context, in domain.CreateImageInput) (domain.ImageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpCreateImage, string(in.Instance), in.Name); err != nil {
		return "", err
	}
	c.seq++
	id := domain.ImageID(fmt.Sprintf("ami-%04d", c.seq))
	img := &domain.CapturedImage{
		ID:        id,
		Name:      in.Name,
		State:     c.NewImageState,
		CreatedAt: c.now(),
		Tags:      map[string]string{},
	}
	for _, t := range in.Tags {
		img.Tags[t.Key] = t.Value
	}
	for i, dev := range c.SnapshotDevices {
		snap := domain.SnapshotID(fmt.Sprintf("snap-%04d-%d", c.seq, i))
		c.snapshots[snap] = map[string]string{}
		for _, t := range in.Tags {
			c.snapshots[snap][t.Key] = t.Value
		}
		img.BlockDevices = append(img.BlockDevices, domain.BlockDevice{DeviceName: dev, SnapshotID: snap})
	}
	for _, dev := range c.EphemeralDevices {
		img.BlockDevices = append(img.BlockDevices, domain.BlockDevice{DeviceName: dev})
	}
	c.images[id] = img
	if c.HideNewImages {
		c.hiddenIDs[id] = true
	}
	return id, nil
}

func (c *Cloud) DescribeImages(_ context.Context, ids ...domain.ImageID) ([]domain.CapturedImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	args := make([]string, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	if err := c.record(OpDescribeImages, args...); err != nil {
		return nil, err
	}
	var out []domain.CapturedImage
	for _, id := range ids {
		img, ok := c.images[id]
		if !ok || c.isHidden(id) {
			continue
		}
		out = append(out, copyImage(img))
	}
	return out, nil
}

func (c *Cloud) FindImages(_ context.Context, match []domain.Tag) ([]domain.CapturedImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	args := make([]string, len(match))
	for i, t := range match {
		args[i] = t.Key + "=" + t.Value
	}
	if err := c.record(OpFindImages, args...); err != nil {
		return nil, err
	}
	var out []domain.CapturedImage
	for id, img := range c.images {
		if c.isHidden(id) || !hasTags(img.Tags, match) {
			continue
		}
		out = append(out, copyImage(img))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Cloud) TagResources(_ context.Context, resources []string, tags []domain.Tag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	args := slices.Clone(resources)
	for _, t := range tags {
		args = append(args, t.Key+"="+t.Value)
	}
	if err := c.record(OpTagResources, args...); err != nil {
		return err
	}
	for _, r := range resources {
		if img, ok := c.images[domain.ImageID(r)]; ok {
			for _, t := range tags {
				img.Tags[t.Key] = t.Value
			}
			continue
		}
		if snap, ok := c.snapshots[domain.SnapshotID(r)]; ok {
			for _, t := range tags {
				snap[t.Key] = t.Value
			}
			continue
		}
		return fmt.Errorf("resource %s: %w", r, domain.ErrNotFound)
	}
	return nil
}

func (c *Cloud) DeregisterImage(_ context.Context, id domain.ImageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpDeregisterImage, string(id)); err != nil {
		return err
	}
	if _, ok := c.images[id]; !ok {
		return fmt.Errorf("image %s: %w", id, domain.ErrNotFound)
	}
	delete(c.images, id)
	return nil
}

func (c *Cloud) DeleteSnapshot(_ context.Context, id domain.SnapshotID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpDeleteSnapshot, string(id)); err != nil {
		return err
	}
	if _, ok := c.snapshots[id]; !ok {
		return fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
	}
	delete(c.snapshots, id)
	return nil
}

// --- domain.DescriptorAPI ---

func (c *Cloud) Describe(_ context.Context, id domain.DeploymentID) (domain.DeploymentDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpDescribeStack, string(id)); err != nil {
		return domain.DeploymentDescriptor{}, err
	}
	d, ok := c.stacks[id]
	if !ok {
		return domain.DeploymentDescriptor{}, fmt.Errorf("stack %s: %w", id, domain.ErrNotFound)
	}
	cp := *d
	cp.Parameters = slices.Clone(d.Parameters)
	return cp, nil
}

// Update applies params with the provider's all-or-nothing contract: every
// existing parameter must be listed, and a UsePrevious entry must not carry
// a value.
func (c *Cloud) Update(_ context.Context, id domain.DeploymentID, params []domain.ParameterUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	args := make([]string, len(params))
	for i, p := range params {
		if p.UsePrevious {
			args[i] = p.Key + "=<previous>"
		} else {
			args[i] = p.Key + "=" + p.Value
		}
	}
	if err := c.record(OpUpdateStack, append([]string{string(id)}, args...)...); err != nil {
		return err
	}
	d, ok := c.stacks[id]
	if !ok {
		return fmt.Errorf("stack %s: %w", id, domain.ErrNotFound)
	}
	if len(params) != len(d.Parameters) {
		return fmt.Errorf("%w: update lists %d parameters, stack has %d",
			domain.ErrInvalidArgument, len(params), len(d.Parameters))
	}
	next := make([]domain.Parameter, 0, len(params))
	for _, p := range params {
		prev, ok := d.Parameter(p.Key)
		if !ok {
			return fmt.Errorf("%w: unknown parameter %q", domain.ErrInvalidArgument, p.Key)
		}
		if p.UsePrevious {
			if p.Value != "" {
				return fmt.Errorf("%w: parameter %q has a value and UsePrevious", domain.ErrInvalidArgument, p.Key)
			}
			next = append(next, domain.Parameter{Key: p.Key, Value: prev})
			continue
		}
		next = append(next, domain.Parameter{Key: p.Key, Value: p.Value})
	}
	d.Parameters = next
	d.Status = "UPDATE_COMPLETE"
	c.updates[id] = append(c.updates[id], slices.Clone(params))
	return nil
}

// --- domain.SubscriptionAPI ---

func (c *Cloud) Enable(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpEnableRule, name); err != nil {
		return err
	}
	c.rules[name] = true
	return nil
}

func (c *Cloud) Disable(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpDisableRule, name); err != nil {
		return err
	}
	c.rules[name] = false
	return nil
}

// --- domain.AutomationAPI ---

func (c *Cloud) Start(_ context.Context, document string, params map[string][]string) (domain.AutomationExecutionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var args []string
	for k, v := range params {
		args = append(args, k+"="+strings.Join(v, "|"))
	}
	sort.Strings(args)
	if err := c.record(OpStartAutomation, append([]string{document}, args...)...); err != nil {
		return "", err
	}
	c.seq++
	id := domain.AutomationExecutionID(fmt.Sprintf("exec-%04d", c.seq))
	cp := make(map[string][]string, len(params))
	for k, v := range params {
		cp[k] = slices.Clone(v)
	}
	c.runs = append(c.runs, AutomationRun{ID: id, Document: document, Params: cp})
	return id, nil
}

// --- helpers ---

// record appends a call and returns the injected failure for op, if any.
// Callers hold c.mu.
func (c *Cloud) record(op string, args ...string) error {
	c.calls = append(c.calls, Call{Op: op, Args: args})
	if err, ok := c.failOnce[op]; ok {
		delete(c.failOnce, op)
		return err
	}
	return c.failures[op]
}

func (c *Cloud) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cloud) isHidden(id domain.ImageID) bool {
	return c.HideNewImages && c.hiddenIDs[id]
}

func hasTags(have map[string]string, want []domain.Tag) bool {
	for _, t := range want {
		if have[t.Key] != t.Value {
			return false
		}
	}
	return true
}

func copyImage(img *domain.CapturedImage) domain.CapturedImage {
	cp := *img
	cp.BlockDevices = slices.Clone(img.BlockDevices)
	cp.Tags = make(map[string]string, len(img.Tags))
	for k, v := range img.Tags {
		cp.Tags[k] = v
	}
	return cp
}
