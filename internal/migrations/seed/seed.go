// Package seed loads the facility catalogue from a YAML file and applies
// it to a facility repository, matching existing facilities by name.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	facilityerrors "spacebook/internal/facilities/errors"
	"spacebook/internal/facilities/repository"
	"spacebook/internal/facilities/validator"
	"spacebook/pkg/logger"
	"spacebook/pkg/model"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type File struct {
	Facilities []FacilityEntry `yaml:"facilities"`
}

type FacilityEntry struct {
	Name         string            `yaml:"name"`
	Category     string            `yaml:"category"`
	Capacity     int               `yaml:"capacity"`
	Active       *bool             `yaml:"active"`
	AllowedRoles []model.Role      `yaml:"allowed_roles"`
	Unavailable  []model.DateRange `yaml:"unavailable"`
}

type Result struct {
	Created int
	Updated int
}

// Parse decodes a seed file. Unknown keys and repeated names are errors;
// facilities are active unless the entry says otherwise.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	seen := make(map[string]bool, len(f.Facilities))
	for i, e := range f.Facilities {
		key := strings.ToLower(strings.TrimSpace(e.Name))
		if key == "" {
			return nil, fmt.Errorf("facility #%d has no name", i+1)
		}
		if seen[key] {
			return nil, fmt.Errorf("facility %q is listed twice", e.Name)
		}
		seen[key] = true
	}
	return &f, nil
}

func (e FacilityEntry) facility() *model.Facility {
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return &model.Facility{
		Name:         strings.TrimSpace(e.Name),
		Category:     strings.TrimSpace(e.Category),
		Capacity:     e.Capacity,
		Active:       active,
		AllowedRoles: e.AllowedRoles,
		Unavailable:  e.Unavailable,
	}
}

// Apply creates missing facilities and overwrites the settings of
// existing ones. Bookings are never touched.
func Apply(
	ctx context.Context,
	repo repository.FacilityRepository,
	v *validator.FacilityValidator,
	f *File,
	now time.Time,
	log *logger.Logger,
) (Result, error) {
	var res Result
	for _, entry := range f.Facilities {
		want := entry.facility()
		if err := v.Validate(want); err != nil {
			return res, fmt.Errorf("facility %q: %w", want.Name, err)
		}

		existing, err := repo.FindByName(ctx, want.Name)
		switch {
		case errors.Is(err, facilityerrors.ErrNotFound):
			want.ID = uuid.NewString()
			want.CreatedAt = now
			want.UpdatedAt = now
			if err := repo.Create(ctx, want); err != nil {
				return res, fmt.Errorf("create facility %q: %w", want.Name, err)
			}
			res.Created++
			log.Info("Seeded facility", "id", want.ID, "name", want.Name)
		case err != nil:
			return res, fmt.Errorf("look up facility %q: %w", want.Name, err)
		default:
			want.ID = existing.ID
			want.CreatedAt = existing.CreatedAt
			want.UpdatedAt = now
			if err := repo.Update(ctx, want); err != nil {
				return res, fmt.Errorf("update facility %q: %w", want.Name, err)
			}
			res.Updated++
			log.Info("Updated seeded facility", "id", want.ID, "name", want.Name)
		}
	}
	return res, nil
}
