package storygraph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"ambient-novel/internal/domain"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

// ConfigError aggregates every data-integrity problem found in a story.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "story validation failed: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == domain.ErrInvalidStory
}

// Problems lists the individual violations.
func (e *ConfigError) Problems() []error {
	return multierr.Errors(e.Err)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func sceneValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("environment", func(fl validator.FieldLevel) bool {
			return domain.Environment(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate checks the struct rules of every scene and the graph rules of the
// whole story. It returns nil or a *ConfigError listing all violations.
func Validate(scenes []domain.Scene, entry string) error {
	var errs error

	if len(scenes) == 0 {
		return &ConfigError{Err: errors.New("story has no scenes")}
	}

	ids := make(map[string]struct{}, len(scenes))
	for i := range scenes {
		sc := &scenes[i]
		if sc.ID == "" {
			continue // reported by the struct rules below
		}
		if _, dup := ids[sc.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("scene %q: duplicate id", sc.ID))
		}
		ids[sc.ID] = struct{}{}
	}

	if _, ok := ids[entry]; !ok {
		errs = multierr.Append(errs, fmt.Errorf("entry scene %q does not exist", entry))
	}

	v := sceneValidator()
	for i := range scenes {
		sc := &scenes[i]
		label := sc.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if err := v.Struct(sc); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					errs = multierr.Append(errs, fmt.Errorf("scene %q: %s failed on %q", label, trimNamespace(fe.Namespace()), fe.Tag()))
				}
			} else {
				errs = multierr.Append(errs, fmt.Errorf("scene %q: %w", label, err))
			}
		}

		for _, c := range sc.Choices {
			if c.NextScene == "" {
				continue
			}
			if _, ok := ids[c.NextScene]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("scene %q: choice %q points to missing scene %q", label, c.Text, c.NextScene))
			}
		}

		switch {
		case sc.IsEnding && sc.EndingType == "":
			errs = multierr.Append(errs, fmt.Errorf("scene %q: ending scene requires endingType", label))
		case !sc.IsEnding && sc.EndingType != "":
			errs = multierr.Append(errs, fmt.Errorf("scene %q: endingType set on a non-ending scene", label))
		}

		switch {
		case sc.IsEnding && len(sc.Choices) > 0:
			errs = multierr.Append(errs, fmt.Errorf("scene %q: ending scene must not offer choices", label))
		case !sc.IsEnding && len(sc.Choices) == 0:
			errs = multierr.Append(errs, fmt.Errorf("scene %q: non-ending scene has no choices", label))
		}
	}

	if errs != nil {
		return &ConfigError{Err: errs}
	}
	return nil
}

// trimNamespace drops the root struct name: "Scene.Dialogue[0].Text" -> "Dialogue[0].Text".
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
