package alias

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/artromone/linkpulse/pkg/shortcode"
	"github.com/artromone/linkpulse/services/shortener/models"
)

const (
	maxAttempts       = 20
	collisionsPerStep = 5
)

var customAliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Checker interface {
	AliasExists(ctx context.Context, alias string) (bool, error)
}

// Generator hands out aliases that were free at the time of the check.
// The UNIQUE index on links.alias stays the final arbiter.
type Generator struct {
	store    Checker
	validate *validator.Validate
	random   func(n int) (string, error)
}

func New(store Checker) *Generator {
	return &Generator{
		store:    store,
		validate: NewValidator(),
		random:   shortcode.GenerateN,
	}
}

// NewValidator returns a validator that understands the "alias" tag and
// reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("alias", func(fl validator.FieldLevel) bool {
		return customAliasPattern.MatchString(fl.Field().String())
	})
	return v
}

// Generate returns custom verbatim when it is valid and unused, otherwise a
// random alias. Random aliases start at shortcode.DefaultLength and grow by
// one character after every five collisions.
func (g *Generator) Generate(ctx context.Context, custom string) (string, error) {
	if custom != "" {
		return g.claimCustom(ctx, custom)
	}

	length := shortcode.DefaultLength
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidate, err := g.random(length)
		if err != nil {
			return "", fmt.Errorf("generate alias: %w", err)
		}

		exists, err := g.store.AliasExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check alias: %w", err)
		}
		if !exists {
			return candidate, nil
		}

		if attempt%collisionsPerStep == 0 {
			length++
		}
	}
	return "", models.ErrAliasSpaceExhausted
}

func (g *Generator) claimCustom(ctx context.Context, custom string) (string, error) {
	if err := g.validate.Var(custom, "min=3,max=64,alias"); err != nil {
		return "", fmt.Errorf("%w: custom alias must be 3-64 letters, digits, '-' or '_'", models.ErrInvalidInput)
	}

	exists, err := g.store.AliasExists(ctx, custom)
	if err != nil {
		return "", fmt.Errorf("check alias: %w", err)
	}
	if exists {
		return "", models.ErrAliasTaken
	}
	return custom, nil
}
