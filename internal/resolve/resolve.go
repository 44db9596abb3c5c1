// Package resolve computes a minimally disruptive set of version
// upgrades that eliminates the conflicts the conflict package found,
// by querying the package index for candidate versions and ranking
// them for maximum compatibility and minimum change.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pipaudit/pipaudit/internal/conflict"
	"github.com/pipaudit/pipaudit/internal/graph"
	"github.com/pipaudit/pipaudit/internal/index"
	"github.com/pipaudit/pipaudit/internal/markerenv"
	"github.com/pipaudit/pipaudit/internal/names"
	"github.com/pipaudit/pipaudit/internal/version"
)

// Item is one target-version change in a Plan.
type Item struct {
	PackageName    string
	CurrentVersion version.Version
	TargetVersion  version.Version
	Satisfies      []conflict.Conflict
}

// UnsolvableBucket records a dependency name for which no candidate
// version satisfied every accumulated constraint, or whose chosen
// candidate failed the validation sweep.
type UnsolvableBucket struct {
	PackageName string
	Combined    version.SpecifierSet
	Reason      string
}

// Plan is an ordered sequence of Items to apply, plus the buckets the
// resolver could not satisfy.
type Plan struct {
	Items      []Item
	Unsolvable []UnsolvableBucket
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// Resolver computes Plans from Conflicts against an Index client.
type Resolver struct {
	client index.Client
	logger *slog.Logger
}

// New creates a Resolver backed by client.
func New(client index.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve computes a Plan for conflicts against m. m is read but never
// mutated; the caller's graph remains the authoritative installed
// state throughout.
func (r *Resolver) Resolve(ctx context.Context, m graph.DependencyMap, conflicts []conflict.Conflict) (Plan, error) {
	buckets := groupByDependency(conflicts)

	var (
		items      []Item
		unsolvable []UnsolvableBucket
	)

	for _, depName := range sortedKeys(buckets) {
		bucketConflicts := buckets[depName]
		combined := combinedSpecifier(m, depName, bucketConflicts)

		item, reason, err := r.resolveBucket(ctx, m, depName, combined, bucketConflicts)
		if err != nil {
			return Plan{}, fmt.Errorf("resolving %s: %w", depName, err)
		}

		if reason != "" {
			unsolvable = append(unsolvable, UnsolvableBucket{
				PackageName: depName,
				Combined:    combined,
				Reason:      reason,
			})

			continue
		}

		items = append(items, item)
	}

	ordered := topologicalOrder(items, m)

	final, swept := r.validationSweep(m, ordered)
	unsolvable = append(unsolvable, swept...)

	return Plan{Items: final, Unsolvable: unsolvable}, nil
}

func groupByDependency(conflicts []conflict.Conflict) map[string][]conflict.Conflict {
	buckets := make(map[string][]conflict.Conflict)

	for _, c := range conflicts {
		buckets[c.DepName] = append(buckets[c.DepName], c)
	}

	return buckets
}

func sortedKeys(buckets map[string][]conflict.Conflict) []string {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// combinedSpecifier folds together every specifier set any node in
// the graph declares on depName — not just the ones that are
// currently conflicting — so a fix can't break an already-satisfied
// sibling.
func combinedSpecifier(m graph.DependencyMap, depName string, bucketConflicts []conflict.Conflict) version.SpecifierSet {
	var combined version.SpecifierSet

	for _, c := range bucketConflicts {
		combined = version.Intersect(combined, c.Required)
	}

	for _, parentName := range m.Names() {
		parent := m[parentName]

		if set, ok := parent.Dependencies[depName]; ok {
			combined = version.Intersect(combined, set)
		}
	}

	return combined
}

// resolveBucket fetches candidates for depName, filters and ranks
// them, and returns either a resolved Item or a non-empty reason the
// bucket is unsolvable. A depName with no node in m is not installed
// at all; installing it is out of scope for this core (spec's "this is
// not an installer" non-goal), so such buckets are UNSOLVABLE
// regardless of what the index reports.
func (r *Resolver) resolveBucket(ctx context.Context, m graph.DependencyMap, depName string, combined version.SpecifierSet, bucketConflicts []conflict.Conflict) (Item, string, error) {
	if _, installed := m[depName]; !installed {
		return Item{}, "package is not installed; installing it is out of scope", nil
	}

	candidates, err := r.client.Versions(ctx, depName)
	if err != nil {
		r.logger.Debug("index unreachable for bucket", slog.String("package", depName), slog.String("error", err.Error()))

		return Item{}, fmt.Sprintf("index unreachable: %v", err), nil
	}

	var satisfying []version.Version

	for _, v := range candidates {
		if version.Satisfies(v, combined) {
			satisfying = append(satisfying, v)
		}
	}

	if len(satisfying) == 0 {
		return Item{}, "no candidate version satisfies the combined specifier set", nil
	}

	current := m[depName].InstalledVersion

	best := r.rank(ctx, depName, satisfying, current, m)

	return Item{
		PackageName:    depName,
		CurrentVersion: current,
		TargetVersion:  best,
		Satisfies:      bucketConflicts,
	}, "", nil
}

// rank orders candidates by: (1) fewest new conflicts introduced by
// the candidate's own requirements against the currently installed
// graph, (2) smallest change distance from the current version, (3)
// preference for upgrades over downgrades when otherwise tied.
func (r *Resolver) rank(ctx context.Context, depName string, candidates []version.Version, current version.Version, m graph.DependencyMap) version.Version {
	type scored struct {
		v            version.Version
		newConflicts int
		distance     int64
	}

	scoredCandidates := make([]scored, len(candidates))

	for i, v := range candidates {
		scoredCandidates[i] = scored{
			v:            v,
			newConflicts: r.sideEffectConflicts(ctx, depName, v, m),
			distance:     version.Distance(current, v),
		}
	}

	sort.SliceStable(scoredCandidates, func(i, j int) bool {
		a, b := scoredCandidates[i], scoredCandidates[j]

		if a.newConflicts != b.newConflicts {
			return a.newConflicts < b.newConflicts
		}

		if a.distance != b.distance {
			return a.distance < b.distance
		}

		// Equidistant: prefer the upgrade.
		aUp := version.GreaterThan(a.v, current)
		bUp := version.GreaterThan(b.v, current)

		if aUp != bUp {
			return aUp
		}

		return version.GreaterThan(a.v, b.v)
	})

	return scoredCandidates[0].v
}

// sideEffectConflicts over-approximates "does installing depName at v
// break an already-satisfied sibling": it counts how many of v's own
// declared requirements are unsatisfied by what's currently installed.
func (r *Resolver) sideEffectConflicts(ctx context.Context, depName string, v version.Version, m graph.DependencyMap) int {
	requires, err := r.client.Requires(ctx, depName, v.String())
	if err != nil {
		r.logger.Debug("could not fetch requires_dist for side-effect check",
			slog.String("package", depName), slog.String("version", v.String()), slog.String("error", err.Error()))

		return 0
	}

	count := 0

	for _, raw := range requires {
		req := markerenv.ParseRequirement(raw)
		if req.Name == "" {
			continue
		}

		name := names.Normalize(req.Name)

		node, installed := m[name]
		if !installed {
			continue
		}

		set := version.ParseSpecifierSet(req.Specifier, r.logger)
		if !version.Satisfies(node.InstalledVersion, set) {
			count++
		}
	}

	return count
}

// topologicalOrder sorts items so that packages with no resolved-item
// dependency run first, breaking cycles with name order.
func topologicalOrder(items []Item, m graph.DependencyMap) []Item {
	byName := make(map[string]Item, len(items))
	for _, it := range items {
		byName[it.PackageName] = it
	}

	var (
		ordered []Item
		visited = make(map[string]bool)
		onStack = make(map[string]bool)
	)

	planNames := make([]string, 0, len(items))
	for name := range byName {
		planNames = append(planNames, name)
	}

	sort.Strings(planNames)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] || onStack[name] {
			return
		}

		onStack[name] = true

		item, inPlan := byName[name]
		if inPlan {
			if node, ok := m[name]; ok {
				depNames := make([]string, 0, len(node.Dependencies))
				for dep := range node.Dependencies {
					if _, ok := byName[dep]; ok {
						depNames = append(depNames, dep)
					}
				}

				sort.Strings(depNames)

				for _, dep := range depNames {
					visit(dep)
				}
			}

			ordered = append(ordered, item)
		}

		onStack[name] = false
		visited[name] = true
	}

	for _, name := range planNames {
		visit(name)
	}

	return ordered
}

// validationSweep re-runs conflict detection with each item's target
// version substituted for the installed version, dropping any item
// whose substitution introduces a conflict that didn't exist before.
func (r *Resolver) validationSweep(m graph.DependencyMap, items []Item) ([]Item, []UnsolvableBucket) {
	before := conflict.Detect(m)
	beforeKeys := conflictKeys(before)

	virtual := cloneGraph(m)

	// Every item here targets a package already present in m —
	// resolveBucket rejects not-installed dependencies before an Item
	// is ever produced — so the lookup below always hits.
	for _, it := range items {
		if node, ok := virtual[it.PackageName]; ok {
			node.InstalledVersion = it.TargetVersion
		}
	}

	after := conflict.Detect(virtual)

	introduced := make(map[string]bool)

	for _, c := range after {
		key := c.ParentName + "\x00" + c.DepName
		if !beforeKeys[key] {
			introduced[c.DepName] = true
		}
	}

	var (
		kept     []Item
		rejected []UnsolvableBucket
	)

	for _, it := range items {
		if introduced[it.PackageName] {
			rejected = append(rejected, UnsolvableBucket{
				PackageName: it.PackageName,
				Reason:      "validation sweep found a new conflict introduced by the chosen target version",
			})

			continue
		}

		kept = append(kept, it)
	}

	return kept, rejected
}

func conflictKeys(conflicts []conflict.Conflict) map[string]bool {
	keys := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		keys[c.ParentName+"\x00"+c.DepName] = true
	}

	return keys
}

func cloneGraph(m graph.DependencyMap) graph.DependencyMap {
	clone := graph.New()

	for name, node := range m {
		cloned := clone.GetOrCreate(name, node.InstalledVersion)
		for dep, set := range node.Dependencies {
			cloned.Dependencies[dep] = set
		}
	}

	return clone
}
