package gradebook

import (
	"context"
	"strings"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/propagation"
)

type CreateACInput struct {
	Name     string
	MaxMarks float64
	LOIDs    []int64
}

// UpdateACInput changes the fields that are set. A nil LOIDs leaves the
// LO mapping alone; an empty non-nil slice unmaps every LO.
type UpdateACInput struct {
	Name     *string
	MaxMarks *float64
	LOIDs    []int64
}

type CreateLOInput struct {
	Name  string
	ROIDs []int64
}

type UpdateLOInput struct {
	Name  *string
	ROIDs []int64
}

// CreateAC adds an AC and maps it to the given LOs with no priority, so no
// score changes until a priority is assigned.
func (s *Service) CreateAC(ctx context.Context, scope outcome.Scope, in CreateACInput) (outcome.Node, *propagation.Summary, error) {
	if err := scope.Validate(); err != nil {
		return outcome.Node{}, nil, err
	}
	if err := checkDistinct("lo_id", in.LOIDs); err != nil {
		return outcome.Node{}, nil, err
	}
	var created outcome.Node
	sum, err := s.write(ctx, "ac.create", "ac:new", func(u *unit) error {
		if err := requireNodes(ctx, u.store, outcome.TierLO, in.LOIDs, scope); err != nil {
			return err
		}
		n, err := u.store.CreateNode(ctx, outcome.Node{
			Tier: outcome.TierAC, Name: strings.TrimSpace(in.Name), Scope: scope, MaxMarks: in.MaxMarks,
		})
		if err != nil {
			return err
		}
		for _, lo := range in.LOIDs {
			if err := u.store.AddEdge(ctx, outcome.Edge{Kind: outcome.ACToLO, SourceID: n.ID, TargetID: lo}); err != nil {
				return err
			}
		}
		created = n
		u.touch(scope)
		return nil
	})
	return created, sum, err
}

// UpdateAC renames, rescales and remaps an AC. A max_marks change rescales
// the stored AC scores from their raw marks and recomputes every LO the AC
// feeds; a remap recomputes the LOs that gained or lost the AC. Edges to
// LOs kept in the mapping keep their priority.
func (s *Service) UpdateAC(ctx context.Context, id int64, in UpdateACInput) (*propagation.Summary, error) {
	if in.Name == nil && in.MaxMarks == nil && in.LOIDs == nil {
		return nil, apperr.Validation("nothing to update: name, max_marks or lo_id is required")
	}
	if err := checkDistinct("lo_id", in.LOIDs); err != nil {
		return nil, err
	}
	return s.write(ctx, "ac.update", ref(outcome.TierAC, id), func(u *unit) error {
		node, err := u.store.GetNode(ctx, outcome.TierAC, id)
		if err != nil {
			return err
		}
		u.touch(node.Scope)

		current, err := u.store.ListEdgesFrom(ctx, outcome.ACToLO, id)
		if err != nil {
			return err
		}
		affected := map[int64]struct{}{}

		rescaled := in.MaxMarks != nil && *in.MaxMarks != node.MaxMarks
		if in.Name != nil {
			node.Name = strings.TrimSpace(*in.Name)
		}
		if in.MaxMarks != nil {
			node.MaxMarks = *in.MaxMarks
		}
		if err := u.store.UpdateNode(ctx, node); err != nil {
			return err
		}
		if rescaled {
			if err := rescaleScores(ctx, u.store, id, node.MaxMarks); err != nil {
				return err
			}
			for _, e := range current {
				affected[e.TargetID] = struct{}{}
			}
		}

		if in.LOIDs != nil {
			if err := requireNodes(ctx, u.store, outcome.TierLO, in.LOIDs, node.Scope); err != nil {
				return err
			}
			want := toSet(in.LOIDs)
			have := map[int64]struct{}{}
			for _, e := range current {
				have[e.TargetID] = struct{}{}
				if _, keep := want[e.TargetID]; keep {
					continue
				}
				if err := u.store.DeleteEdge(ctx, outcome.ACToLO, id, e.TargetID); err != nil {
					return err
				}
				affected[e.TargetID] = struct{}{}
			}
			for _, lo := range in.LOIDs {
				if _, ok := have[lo]; ok {
					continue
				}
				if err := u.store.AddEdge(ctx, outcome.Edge{Kind: outcome.ACToLO, SourceID: id, TargetID: lo}); err != nil {
					return err
				}
				affected[lo] = struct{}{}
			}
		}

		return u.eng.OnLOEdgesChanged(ctx, u.sum, keys(affected)...)
	})
}

// rescaleScores re-derives every stored AC value from its raw marks.
func rescaleScores(ctx context.Context, st outcome.Store, ac int64, maxMarks float64) error {
	scores, err := st.ListScores(ctx, outcome.TierAC, []int64{ac}, nil)
	if err != nil {
		return err
	}
	for i, sc := range scores {
		obtained := *sc.Obtained
		if obtained > maxMarks {
			return apperr.Validation("student %d has %v marks, above the new max_marks %v", sc.StudentID, obtained, maxMarks)
		}
		scores[i].Value = obtained / maxMarks
	}
	return st.UpsertScores(ctx, outcome.TierAC, scores)
}

// CreateLO adds an LO and maps it to the given ROs with no priority.
func (s *Service) CreateLO(ctx context.Context, scope outcome.Scope, in CreateLOInput) (outcome.Node, *propagation.Summary, error) {
	if err := scope.Validate(); err != nil {
		return outcome.Node{}, nil, err
	}
	if err := checkDistinct("ro_id", in.ROIDs); err != nil {
		return outcome.Node{}, nil, err
	}
	var created outcome.Node
	sum, err := s.write(ctx, "lo.create", "lo:new", func(u *unit) error {
		if err := requireNodes(ctx, u.store, outcome.TierRO, in.ROIDs, scope); err != nil {
			return err
		}
		n, err := u.store.CreateNode(ctx, outcome.Node{Tier: outcome.TierLO, Name: strings.TrimSpace(in.Name), Scope: scope})
		if err != nil {
			return err
		}
		for _, ro := range in.ROIDs {
			if err := u.store.AddEdge(ctx, outcome.Edge{Kind: outcome.LOToRO, SourceID: n.ID, TargetID: ro}); err != nil {
				return err
			}
		}
		created = n
		u.touch(scope)
		return nil
	})
	return created, sum, err
}

// UpdateLO renames an LO and/or replaces the set of ROs it feeds. ROs that
// gained or lost the LO are recomputed.
func (s *Service) UpdateLO(ctx context.Context, id int64, in UpdateLOInput) (*propagation.Summary, error) {
	if in.Name == nil && in.ROIDs == nil {
		return nil, apperr.Validation("nothing to update: name or ro_id is required")
	}
	if err := checkDistinct("ro_id", in.ROIDs); err != nil {
		return nil, err
	}
	return s.write(ctx, "lo.update", ref(outcome.TierLO, id), func(u *unit) error {
		node, err := u.store.GetNode(ctx, outcome.TierLO, id)
		if err != nil {
			return err
		}
		u.touch(node.Scope)
		if in.Name != nil {
			node.Name = strings.TrimSpace(*in.Name)
			if err := u.store.UpdateNode(ctx, node); err != nil {
				return err
			}
		}
		if in.ROIDs == nil {
			return nil
		}

		if err := requireNodes(ctx, u.store, outcome.TierRO, in.ROIDs, node.Scope); err != nil {
			return err
		}
		current, err := u.store.ListEdgesFrom(ctx, outcome.LOToRO, id)
		if err != nil {
			return err
		}
		want := toSet(in.ROIDs)
		have := map[int64]struct{}{}
		affected := map[int64]struct{}{}
		for _, e := range current {
			have[e.TargetID] = struct{}{}
			if _, keep := want[e.TargetID]; keep {
				continue
			}
			if err := u.store.DeleteEdge(ctx, outcome.LOToRO, id, e.TargetID); err != nil {
				return err
			}
			affected[e.TargetID] = struct{}{}
		}
		for _, ro := range in.ROIDs {
			if _, ok := have[ro]; ok {
				continue
			}
			if err := u.store.AddEdge(ctx, outcome.Edge{Kind: outcome.LOToRO, SourceID: id, TargetID: ro}); err != nil {
				return err
			}
			affected[ro] = struct{}{}
		}
		return u.eng.OnROEdgesChanged(ctx, u.sum, keys(affected)...)
	})
}

func (s *Service) CreateRO(ctx context.Context, scope outcome.Scope, name string) (outcome.Node, *propagation.Summary, error) {
	if err := scope.Validate(); err != nil {
		return outcome.Node{}, nil, err
	}
	var created outcome.Node
	sum, err := s.write(ctx, "ro.create", "ro:new", func(u *unit) error {
		n, err := u.store.CreateNode(ctx, outcome.Node{Tier: outcome.TierRO, Name: strings.TrimSpace(name), Scope: scope})
		if err != nil {
			return err
		}
		created = n
		u.touch(scope)
		return nil
	})
	return created, sum, err
}

func (s *Service) RenameRO(ctx context.Context, id int64, name string) (*propagation.Summary, error) {
	return s.write(ctx, "ro.update", ref(outcome.TierRO, id), func(u *unit) error {
		node, err := u.store.GetNode(ctx, outcome.TierRO, id)
		if err != nil {
			return err
		}
		u.touch(node.Scope)
		node.Name = strings.TrimSpace(name)
		return u.store.UpdateNode(ctx, node)
	})
}

// Delete removes a node of any tier and recomputes what depended on it.
func (s *Service) Delete(ctx context.Context, tier outcome.Tier, id int64) (*propagation.Summary, error) {
	return s.write(ctx, string(tier)+".delete", ref(tier, id), func(u *unit) error {
		node, err := u.store.GetNode(ctx, tier, id)
		if err != nil {
			return err
		}
		u.touch(node.Scope)
		return u.eng.DeleteNode(ctx, tier, id, u.sum)
	})
}

/* ---------------- helpers ---------------- */

func requireNodes(ctx context.Context, st outcome.Store, tier outcome.Tier, ids []int64, scope outcome.Scope) error {
	missing, err := st.MissingNodes(ctx, tier, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return apperr.NotFound("%s not found: %v", tier.Label(), missing)
	}
	for _, id := range ids {
		n, err := st.GetNode(ctx, tier, id)
		if err != nil {
			return err
		}
		if !n.Scope.SameClass(scope) {
			return apperr.Validation("%s %d belongs to %s/%s/%s, not %s/%s/%s", tier.Label(), id,
				n.Scope.Subject, n.Scope.Year, n.Scope.Class, scope.Subject, scope.Year, scope.Class)
		}
	}
	return nil
}

func checkDistinct(field string, ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return apperr.Validation("%s must be positive, got %d", field, id)
		}
		if _, dup := seen[id]; dup {
			return apperr.Validation("duplicate %s %d", field, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func toSet(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func keys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
