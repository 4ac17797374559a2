package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dlovans/charsheet/internal/store"
	"github.com/dlovans/charsheet/pkg/ruleset"
	"github.com/dlovans/charsheet/pkg/runtime"
	"github.com/dlovans/charsheet/pkg/xp"
)

func (a *app) rulesetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ruleset",
		Short: "Manage ruleset drafts and published versions",
	}

	draft := &cobra.Command{
		Use:   "draft RULESET_ID FILE",
		Short: "Save FILE as the mutable draft of a ruleset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readDocument(args[1])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				if err := s.SaveDraft(cmd.Context(), args[0], doc); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "draft %s saved\n", args[0])
				return nil
			})
		},
	}

	publish := &cobra.Command{
		Use:   "publish RULESET_ID",
		Short: "Validate the draft and publish it as the next immutable version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				version, result, err := s.Publish(cmd.Context(), args[0])
				if errors.Is(err, store.ErrInvalidSchema) {
					for _, e := range result.Errors {
						fmt.Fprintf(a.out, "✗ %s\n", e)
					}
					return errChecksFailed
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "published %s version %d\n", args[0], version)
				return nil
			})
		},
	}

	cmd.AddCommand(draft, publish)
	return cmd
}

func (a *app) characterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "character",
		Short: "Create, inspect and edit characters",
	}

	var rulesetID string
	var version int
	create := &cobra.Command{
		Use:   "create CHARACTER_ID",
		Short: "Create a character bound to a published ruleset version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(s *store.Store) error {
				v := version
				if v == 0 {
					latest, err := s.LatestVersion(ctx, rulesetID)
					if err != nil {
						return fmt.Errorf("ruleset %s: %w", rulesetID, err)
					}
					v = latest
				}
				if err := s.CreateCharacter(ctx, args[0], rulesetID, v); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "character %s created on %s version %d\n", args[0], rulesetID, v)
				return nil
			})
		},
	}
	create.Flags().StringVar(&rulesetID, "ruleset", "", "ruleset id")
	create.Flags().IntVar(&version, "version", 0, "published version (default latest)")
	_ = create.MarkFlagRequired("ruleset")

	show := &cobra.Command{
		Use:   "show CHARACTER_ID",
		Short: "Print the resolved sheet as the acting role sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(s *store.Store) error {
				c, schema, err := loadCharacter(ctx, s, args[0])
				if err != nil {
					return err
				}
				role := a.actorRole()
				result := runtime.Redact(schema, runtime.Resolve(schema, c.Sheet.Values, role), role)
				summary := xp.Summarize(c.Sheet.Transactions, schema.GlobalProgression())
				return a.printJSON(map[string]any{
					"character":       c.ID,
					"ruleset":         c.RulesetID,
					"version":         c.Version,
					"sheet":           result,
					"xp_summary":      summary,
					"xp_transactions": c.Sheet.Transactions,
				})
			})
		},
	}

	set := &cobra.Command{
		Use:   "set CHARACTER_ID FIELD VALUE",
		Short: "Store a field value after checking the acting role may edit it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(s *store.Store) error {
				c, schema, err := loadCharacter(ctx, s, args[0])
				if err != nil {
					return err
				}
				values, err := setField(schema, c.Sheet.Values, args[1], parseScalar(args[2]), a.actorRole())
				if err != nil {
					return err
				}
				c.Sheet.Values = values
				if err := s.SaveSheet(ctx, c.ID, c.Sheet); err != nil {
					return err
				}
				a.logger.Info("field set",
					zap.String("character_id", c.ID),
					zap.String("field_id", args[1]),
					zap.String("actor", a.cfg.Actor),
				)
				fmt.Fprintf(a.out, "%s.%s = %v\n", c.ID, args[1], values[args[1]])
				return nil
			})
		},
	}

	cmd.AddCommand(create, show, set)
	return cmd
}

// setField returns a copy of values with fieldID set to v coerced to the
// field's type. The XP pool is owned by the ledger and cannot be set, and
// only the DM may bypass the ledger on XP-upgradable fields.
func setField(schema *ruleset.Schema, values map[string]any, fieldID string, v any, role ruleset.Role) (map[string]any, error) {
	box := schema.BoxByID()[fieldID]
	switch {
	case box == nil || !box.IsField():
		return nil, fmt.Errorf("unknown field %q", fieldID)
	case box.FieldType == ruleset.FieldComputed:
		return nil, fmt.Errorf("field %q is computed", fieldID)
	case box.IsXPPool:
		return nil, fmt.Errorf("field %q is the XP pool; use the xp commands", fieldID)
	case box.EditableBy == ruleset.RoleDM && role != ruleset.RoleDM:
		return nil, fmt.Errorf("field %q can only be edited by the DM", fieldID)
	case box.XPUpgradable && role != ruleset.RoleDM:
		return nil, fmt.Errorf("field %q is upgraded with XP; use 'xp spend'", fieldID)
	}
	coerced, ok := ruleset.CoerceValue(box, v)
	if !ok {
		return nil, fmt.Errorf("invalid %s value %v for field %q", box.FieldType, v, fieldID)
	}
	out := make(map[string]any, len(values)+1)
	for k, val := range values {
		out[k] = val
	}
	out[fieldID] = coerced
	return out, nil
}

func (a *app) xpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xp",
		Short: "Award, spend and review experience points",
	}

	var session string
	award := &cobra.Command{
		Use:   "award CHARACTER_ID AMOUNT",
		Short: "Create a pending session award (DM)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			return a.ledgerOp(cmd.Context(), args[0], func(l *xp.Ledger, sheet xp.Sheet) (*xp.Payload, error) {
				return l.Award(a.xpActor(), sheet, amount, session)
			})
		},
	}
	award.Flags().StringVar(&session, "session", "", "session tag")

	confirm := &cobra.Command{
		Use:   "confirm CHARACTER_ID TX_ID",
		Short: "Confirm a pending award or spend (DM)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ledgerOp(cmd.Context(), args[0], func(l *xp.Ledger, sheet xp.Sheet) (*xp.Payload, error) {
				for _, tx := range sheet.Transactions {
					if tx.ID == args[1] && tx.Type == xp.TypeSpend {
						return l.ConfirmSpend(a.xpActor(), sheet, args[1])
					}
				}
				return l.ConfirmAward(a.xpActor(), sheet, args[1])
			})
		},
	}

	reassign := &cobra.Command{
		Use:   "reassign CHARACTER_ID TX_ID AMOUNT",
		Short: "Replace a confirmed award with a new pending amount (DM)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[2], err)
			}
			return a.ledgerOp(cmd.Context(), args[0], func(l *xp.Ledger, sheet xp.Sheet) (*xp.Payload, error) {
				return l.ReassignAward(a.xpActor(), sheet, args[1], amount)
			})
		},
	}

	spend := &cobra.Command{
		Use:   "spend CHARACTER_ID FIELD",
		Short: "Request one XP upgrade of a field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ledgerOp(cmd.Context(), args[0], func(l *xp.Ledger, sheet xp.Sheet) (*xp.Payload, error) {
				return l.RequestSpend(a.xpActor(), sheet, args[1])
			})
		},
	}

	unlock := &cobra.Command{
		Use:   "unlock CHARACTER_ID TX_ID",
		Short: "Reverse a confirmed spend and refund its cost (DM)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ledgerOp(cmd.Context(), args[0], func(l *xp.Ledger, sheet xp.Sheet) (*xp.Payload, error) {
				return l.UnlockSpend(a.xpActor(), sheet, args[1])
			})
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel CHARACTER_ID TX_ID",
		Short: "Revert a pending award or spend (DM)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ledgerOp(cmd.Context(), args[0], func(l *xp.Ledger, sheet xp.Sheet) (*xp.Payload, error) {
				return l.Cancel(a.xpActor(), sheet, args[1])
			})
		},
	}

	cmd.AddCommand(award, confirm, reassign, spend, unlock, cancel)
	return cmd
}

// ledgerOp loads a character, applies op and stores the resulting sheet.
func (a *app) ledgerOp(ctx context.Context, characterID string, op func(*xp.Ledger, xp.Sheet) (*xp.Payload, error)) error {
	return a.withStore(ctx, func(s *store.Store) error {
		c, schema, err := loadCharacter(ctx, s, characterID)
		if err != nil {
			return err
		}
		ledger := xp.NewLedger(schema, xp.WithLogger(a.logger.With(zap.String("character_id", c.ID))))
		payload, err := op(ledger, c.Sheet)
		if err != nil {
			return err
		}
		if err := s.SaveSheet(ctx, c.ID, payload.Sheet()); err != nil {
			return err
		}
		return a.printJSON(map[string]any{
			"affected":   payload.Affected,
			"xp_summary": payload.Summary,
			"values":     payload.Resolved,
		})
	})
}

func (a *app) withStore(ctx context.Context, fn func(*store.Store) error) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}()
	return fn(s)
}

func loadCharacter(ctx context.Context, s *store.Store, characterID string) (store.Character, *ruleset.Schema, error) {
	c, err := s.Character(ctx, characterID)
	if err != nil {
		return store.Character{}, nil, fmt.Errorf("character %s: %w", characterID, err)
	}
	schema, err := s.Schema(ctx, c.RulesetID, c.Version)
	if err != nil {
		return store.Character{}, nil, fmt.Errorf("ruleset %s version %d: %w", c.RulesetID, c.Version, err)
	}
	return c, schema, nil
}
