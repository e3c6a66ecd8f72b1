// Package health is a worked example external Component definition:
// current/max health, a flat damage shield, and damage/heal event
// handling, expressed as plain property maps instead of struct fields
// and methods.
//
// Per the dispatch contract, a HandleEvent callback only ever sees and
// returns Event.Args — it has no access to the Context to read or
// write the entity's stored component value.
// The handler therefore reads current_health/max_health/shield/
// invincible from the event's Args and returns the transformed values
// as Args. A caller that invokes HandleEvent directly can store those
// returned values with Context.Replace; the dispatch pipeline does not
// write them back to the entity.
package health

import (
	"fmt"

	"github.com/loomweave/ecsruntime/internal/ecs"
)

// TypeName is this component's registry alias.
const TypeName ecs.TypeID = "health"

const (
	EventDamage ecs.EventName = "damage"
	EventHeal   ecs.EventName = "heal"
)

// Define returns a Definition instance defaulted to maxHealth, full
// shield-less health and no invincibility.
func Define(maxHealth int) ecs.Definition {
	return ecs.Definition{
		Name:   TypeName,
		Events: []ecs.EventName{EventDamage, EventHeal},
		New: func(props ecs.Properties) (ecs.Properties, error) {
			return cast(defaults(maxHealth), props)
		},
		Cast: func(raw map[string]interface{}) (ecs.Properties, error) {
			return cast(defaults(maxHealth), raw)
		},
		HandleEvent: handleEvent,
	}
}

func defaults(maxHealth int) map[string]interface{} {
	return map[string]interface{}{
		"current_health": float64(maxHealth),
		"max_health":     float64(maxHealth),
		"shield":         0.0,
		"invincible":     false,
	}
}

// cast overlays raw onto base and validates the merged result.
func cast(base map[string]interface{}, raw map[string]interface{}) (ecs.Properties, error) {
	merged := make(map[string]interface{}, len(base)+len(raw))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range raw {
		merged[k] = v
	}
	if err := validate(merged); err != nil {
		return nil, err
	}
	return ecs.Properties(merged), nil
}

func validate(props map[string]interface{}) error {
	maxHealth, _ := props["max_health"].(float64)
	if maxHealth <= 0 {
		return fmt.Errorf("health: max_health must be positive, got %v", props["max_health"])
	}
	current, _ := props["current_health"].(float64)
	if current < 0 {
		return fmt.Errorf("health: current_health cannot be negative, got %v", props["current_health"])
	}
	shield, _ := props["shield"].(float64)
	if shield < 0 {
		return fmt.Errorf("health: shield cannot be negative, got %v", props["shield"])
	}
	return nil
}

// handleEvent applies a "damage" event's amount first against shield
// then current_health, clamping at zero, and a "heal" event's amount
// against current_health, clamping at max_health. A damage event that
// drives current_health to zero halts propagation to later handlers
// of the same event (e.g. a death-trigger component shouldn't see
// further damage applied to an already-dead entity in the same
// batch).
func handleEvent(name ecs.EventName, evt *ecs.Event) (ecs.Decision, ecs.Properties) {
	args := cloneProps(evt.Args)

	invincible, _ := args["invincible"].(bool)
	maxHealth, _ := args["max_health"].(float64)
	current, _ := args["current_health"].(float64)
	shield, _ := args["shield"].(float64)
	amount, _ := args["amount"].(float64)

	switch name {
	case EventDamage:
		if invincible || amount <= 0 {
			return ecs.Continue, args
		}
		remaining := amount
		if shield > 0 {
			absorbed := minFloat(shield, remaining)
			shield -= absorbed
			remaining -= absorbed
		}
		current -= remaining
		if current < 0 {
			current = 0
		}
		args["shield"] = shield
		args["current_health"] = current
		if current == 0 {
			return ecs.Halt, args
		}
		return ecs.Continue, args

	case EventHeal:
		if amount <= 0 {
			return ecs.Continue, args
		}
		current += amount
		if current > maxHealth {
			current = maxHealth
		}
		args["current_health"] = current
		return ecs.Continue, args

	default:
		return ecs.Continue, args
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func cloneProps(p ecs.Properties) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
