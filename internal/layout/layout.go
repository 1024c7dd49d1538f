// Package layout describes a facility's floors, spots and gates in YAML and
// provisions them idempotently.
//
// A layout file looks like:
//
//	floors:
//	  - number: 1
//	    name: Ground
//	    spots:
//	      - prefix: A
//	        count: 20
//	        category: compact
//	      - codes: [H1, H2]
//	        category: handicapped
//	gates:
//	  - name: G-IN-1
//	    direction: entry
//	  - name: G-OUT-1
//	    direction: exit
package layout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"gopkg.in/yaml.v3"
)

// ErrInvalidLayout marks a layout that cannot be provisioned.
var ErrInvalidLayout = errors.New("invalid layout")

// Layout is the whole facility.
type Layout struct {
	Floors []Floor `yaml:"floors"`
	Gates  []Gate  `yaml:"gates"`
}

// Floor is one level and its spot groups.
type Floor struct {
	Number int         `yaml:"number"`
	Name   string      `yaml:"name"`
	Spots  []SpotGroup `yaml:"spots"`
}

// SpotGroup declares spots of one category, either as explicit codes or as
// Prefix1..PrefixCount.
type SpotGroup struct {
	Category string   `yaml:"category"`
	Codes    []string `yaml:"codes,omitempty"`
	Prefix   string   `yaml:"prefix,omitempty"`
	Count    int      `yaml:"count,omitempty"`
}

// Gate is one named checkpoint.
type Gate struct {
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"`
}

// Provisioner stores layout entities, creating or updating them in place.
type Provisioner interface {
	UpsertFloor(ctx context.Context, number int, name string) (parking.Floor, error)
	UpsertSpot(ctx context.Context, floor parking.Floor, code string, category parking.SpotCategory) (parking.Spot, error)
	UpsertGate(ctx context.Context, name string, direction parking.GateDirection) (parking.Gate, error)
}

// Summary counts what Apply wrote.
type Summary struct {
	Floors int
	Spots  int
	Gates  int
}

// Load reads and validates a layout file.
func Load(path string) (Layout, error) {
	file, err := os.Open(path)
	if err != nil {
		return Layout{}, fmt.Errorf("open layout: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes and validates a layout. Unknown keys are rejected.
func Parse(reader io.Reader) (Layout, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	var layout Layout
	if err := decoder.Decode(&layout); err != nil {
		if errors.Is(err, io.EOF) {
			return Layout{}, fmt.Errorf("%w: empty document", ErrInvalidLayout)
		}
		return Layout{}, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Validate checks categories, directions and uniqueness of floor numbers,
// spot codes per floor and gate names.
func (layout Layout) Validate() error {
	floorNumbers := map[int]bool{}
	for _, floor := range layout.Floors {
		if floorNumbers[floor.Number] {
			return fmt.Errorf("%w: duplicate floor %d", ErrInvalidLayout, floor.Number)
		}
		floorNumbers[floor.Number] = true
		codes := map[string]bool{}
		for _, group := range floor.Spots {
			if _, err := parking.ParseSpotCategory(group.Category); err != nil {
				return fmt.Errorf("%w: floor %d: %v", ErrInvalidLayout, floor.Number, err)
			}
			groupCodes, err := group.codes()
			if err != nil {
				return fmt.Errorf("%w: floor %d: %v", ErrInvalidLayout, floor.Number, err)
			}
			for _, code := range groupCodes {
				if codes[code] {
					return fmt.Errorf("%w: floor %d: duplicate spot code %s", ErrInvalidLayout, floor.Number, code)
				}
				codes[code] = true
			}
		}
	}
	gateNames := map[string]bool{}
	for _, gate := range layout.Gates {
		name := strings.TrimSpace(gate.Name)
		if name == "" {
			return fmt.Errorf("%w: gate name is required", ErrInvalidLayout)
		}
		if gateNames[name] {
			return fmt.Errorf("%w: duplicate gate %s", ErrInvalidLayout, name)
		}
		gateNames[name] = true
		if _, err := parking.ParseGateDirection(gate.Direction); err != nil {
			return fmt.Errorf("%w: gate %s: %v", ErrInvalidLayout, name, err)
		}
	}
	return nil
}

func (group SpotGroup) codes() ([]string, error) {
	if len(group.Codes) > 0 && group.Count > 0 {
		return nil, errors.New("spot group sets both codes and count")
	}
	if len(group.Codes) > 0 {
		codes := make([]string, 0, len(group.Codes))
		for _, code := range group.Codes {
			trimmed := strings.TrimSpace(code)
			if trimmed == "" {
				return nil, errors.New("empty spot code")
			}
			codes = append(codes, trimmed)
		}
		return codes, nil
	}
	if group.Count <= 0 {
		return nil, errors.New("spot group needs codes or a positive count")
	}
	prefix := strings.TrimSpace(group.Prefix)
	if prefix == "" {
		return nil, errors.New("spot group with count needs a prefix")
	}
	codes := make([]string, 0, group.Count)
	for index := 1; index <= group.Count; index++ {
		codes = append(codes, fmt.Sprintf("%s%d", prefix, index))
	}
	return codes, nil
}

// Apply provisions the layout. Re-applying an unchanged layout writes nothing
// new; spot statuses are never reset.
func Apply(ctx context.Context, provisioner Provisioner, layout Layout) (Summary, error) {
	if err := layout.Validate(); err != nil {
		return Summary{}, err
	}
	var summary Summary
	for _, floorLayout := range layout.Floors {
		name := strings.TrimSpace(floorLayout.Name)
		if name == "" {
			name = fmt.Sprintf("Floor %d", floorLayout.Number)
		}
		floor, err := provisioner.UpsertFloor(ctx, floorLayout.Number, name)
		if err != nil {
			return summary, fmt.Errorf("floor %d: %w", floorLayout.Number, err)
		}
		summary.Floors++
		for _, group := range floorLayout.Spots {
			category, _ := parking.ParseSpotCategory(group.Category)
			codes, _ := group.codes()
			for _, code := range codes {
				if _, err := provisioner.UpsertSpot(ctx, floor, code, category); err != nil {
					return summary, fmt.Errorf("floor %d spot %s: %w", floorLayout.Number, code, err)
				}
				summary.Spots++
			}
		}
	}
	for _, gateLayout := range layout.Gates {
		direction, _ := parking.ParseGateDirection(gateLayout.Direction)
		if _, err := provisioner.UpsertGate(ctx, strings.TrimSpace(gateLayout.Name), direction); err != nil {
			return summary, fmt.Errorf("gate %s: %w", gateLayout.Name, err)
		}
		summary.Gates++
	}
	return summary, nil
}
