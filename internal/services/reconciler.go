package services

import (
	"context"
	"log"
	"strings"

	"mailsort-be/internal/models"
)

// LabelProvider is the slice of the mailbox capability the reconciler needs.
type LabelProvider interface {
	ListLabels(ctx context.Context) ([]models.ProviderLabel, error)
	CreateLabel(ctx context.Context, name string) (models.ProviderLabel, error)
	RenameLabel(ctx context.Context, labelID, newName string) (models.ProviderLabel, error)
}

// LabelCache persists the flag-name -> label-id mapping between runs.
type LabelCache interface {
	GetMappings(ctx context.Context, email string) ([]models.LabelMapping, error)
	Upsert(ctx context.Context, m models.LabelMapping) error
	Rename(ctx context.Context, email, oldName, newName string) error
	PruneExcept(ctx context.Context, email string, keep []string) error
}

// FlagRef names one flag to reconcile, with its display color for the cache.
type FlagRef struct {
	Name  string
	Color string
}

// FlagRefsFromNames wraps bare flag names, e.g. when re-deriving a mapping
// from a stored flags_used string.
func FlagRefsFromNames(names []string) []FlagRef {
	refs := make([]FlagRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, FlagRef{Name: name})
	}
	return refs
}

// reservedLabelNames are Gmail system label names a user flag may not use
// verbatim; such flags get a disambiguated display name on the provider.
var reservedLabelNames = map[string]bool{
	"important": true,
	"spam":      true,
	"inbox":     true,
	"sent":      true,
	"draft":     true,
	"trash":     true,
}

// DisplayLabelName returns the provider-facing name for a flag. The flag
// name itself stays the internal mapping key.
func DisplayLabelName(flagName string) string {
	if reservedLabelNames[strings.ToLower(flagName)] {
		return flagName + " Emails"
	}
	return flagName
}

// Reconciler keeps a user's Gmail labels aligned with their flag set:
// creating missing labels, renaming orphaned ones after a flag rename, and
// pruning stale cache rows. Construct one per run.
type Reconciler struct {
	provider LabelProvider
	cache    LabelCache
}

func NewReconciler(provider LabelProvider, cache LabelCache) *Reconciler {
	return &Reconciler{provider: provider, cache: cache}
}

// Reconcile returns the flag-name -> label-id mapping for the given flags.
// A flag that could not be given a label is absent from the result; callers
// must treat a short map as partial failure. Reconcile is idempotent: a
// second invocation with the same flag set returns the same mapping and
// creates nothing new.
func (r *Reconciler) Reconcile(ctx context.Context, email string, flags []FlagRef) (map[string]string, error) {
	providerLabels, err := r.provider.ListLabels(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]models.ProviderLabel, len(providerLabels))
	labelExists := make(map[string]bool, len(providerLabels))
	for _, l := range providerLabels {
		byName[strings.ToLower(l.Name)] = l
		labelExists[l.ID] = true
	}

	cached, err := r.cache.GetMappings(ctx, email)
	if err != nil {
		return nil, err
	}

	activeNames := make([]string, 0, len(flags))
	active := make(map[string]bool, len(flags))
	for _, f := range flags {
		activeNames = append(activeNames, f.Name)
		active[f.Name] = true
	}

	// Orphans: cached rows whose flag is gone but whose provider label is
	// still there. They are rename candidates, consumed in cache order. The
	// synthetic marketing label is never an orphan: it belongs to no flag.
	var orphans []models.LabelMapping
	for _, row := range cached {
		if row.FlagName == MarketingLabelName {
			continue
		}
		if !active[row.FlagName] && labelExists[row.LabelID] {
			orphans = append(orphans, row)
		}
	}

	mapping := make(map[string]string, len(flags))
	for _, flag := range flags {
		display := DisplayLabelName(flag.Name)

		// Reuse an existing provider label under either name.
		if l, ok := byName[strings.ToLower(flag.Name)]; ok {
			mapping[flag.Name] = l.ID
			r.upsert(ctx, email, flag, l.ID)
			continue
		}
		if l, ok := byName[strings.ToLower(display)]; ok {
			mapping[flag.Name] = l.ID
			r.upsert(ctx, email, flag, l.ID)
			continue
		}

		// Rename detection: repurpose the first orphan instead of creating
		// a fresh label.
		if len(orphans) > 0 {
			orphan := orphans[0]
			renamed, err := r.provider.RenameLabel(ctx, orphan.LabelID, display)
			if err == nil {
				orphans = orphans[1:]
				if err := r.cache.Rename(ctx, email, orphan.FlagName, flag.Name); err != nil {
					log.Printf("reconciler: failed to re-key cache row %q -> %q: %v", orphan.FlagName, flag.Name, err)
				}
				mapping[flag.Name] = renamed.ID
				byName[strings.ToLower(renamed.Name)] = renamed
				r.upsert(ctx, email, flag, renamed.ID)
				continue
			}
			log.Printf("reconciler: rename of label %s to %q failed, creating instead: %v", orphan.LabelID, display, err)
		}

		created, err := r.provider.CreateLabel(ctx, display)
		if err != nil {
			// Omission from the mapping is how per-flag failure is reported.
			log.Printf("reconciler: failed to create label %q for %s: %v", display, email, err)
			continue
		}
		mapping[flag.Name] = created.ID
		byName[strings.ToLower(created.Name)] = created
		r.upsert(ctx, email, flag, created.ID)
	}

	// Internal tracking only; provider labels are left untouched.
	if err := r.cache.PruneExcept(ctx, email, append(activeNames, MarketingLabelName)); err != nil {
		log.Printf("reconciler: cache prune for %s failed: %v", email, err)
	}

	return mapping, nil
}

// Resolve is the read-mostly variant of Reconcile used by the revert
// workflow: it re-derives the mapping for a past run's flag names with
// get-or-create only, without consuming orphans or pruning the cache, so it
// cannot disturb the user's current flag set.
func (r *Reconciler) Resolve(ctx context.Context, email string, flags []FlagRef) (map[string]string, error) {
	providerLabels, err := r.provider.ListLabels(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]models.ProviderLabel, len(providerLabels))
	for _, l := range providerLabels {
		byName[strings.ToLower(l.Name)] = l
	}

	mapping := make(map[string]string, len(flags))
	for _, flag := range flags {
		display := DisplayLabelName(flag.Name)
		if l, ok := byName[strings.ToLower(flag.Name)]; ok {
			mapping[flag.Name] = l.ID
			continue
		}
		if l, ok := byName[strings.ToLower(display)]; ok {
			mapping[flag.Name] = l.ID
			continue
		}

		created, err := r.provider.CreateLabel(ctx, display)
		if err != nil {
			log.Printf("reconciler: failed to create label %q for %s: %v", display, email, err)
			continue
		}
		mapping[flag.Name] = created.ID
		byName[strings.ToLower(created.Name)] = created
	}

	return mapping, nil
}

// EnsureLabel get-or-creates a single label outside the flag set, such as
// the synthetic marketing label, and caches its mapping.
func (r *Reconciler) EnsureLabel(ctx context.Context, email, name, color string) (string, error) {
	providerLabels, err := r.provider.ListLabels(ctx)
	if err != nil {
		return "", err
	}

	display := DisplayLabelName(name)
	for _, l := range providerLabels {
		if strings.EqualFold(l.Name, name) || strings.EqualFold(l.Name, display) {
			r.upsert(ctx, email, FlagRef{Name: name, Color: color}, l.ID)
			return l.ID, nil
		}
	}

	created, err := r.provider.CreateLabel(ctx, display)
	if err != nil {
		return "", err
	}
	r.upsert(ctx, email, FlagRef{Name: name, Color: color}, created.ID)
	return created.ID, nil
}

func (r *Reconciler) upsert(ctx context.Context, email string, flag FlagRef, labelID string) {
	err := r.cache.Upsert(ctx, models.LabelMapping{
		Email:    email,
		FlagName: flag.Name,
		LabelID:  labelID,
		Color:    flag.Color,
	})
	if err != nil {
		log.Printf("reconciler: failed to cache label mapping %q for %s: %v", flag.Name, email, err)
	}
}
