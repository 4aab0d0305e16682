package handlers

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperr "github.com/cinedex/cinedex/internal/errors"
)

// Request payload bounds are checked in full before the first write so a
// rejected request never leaves partial state behind.

func (h *Handlers) validateTags(tags []string) error {
	v := h.cfg.Validation
	if len(tags) > v.MaxTags {
		return apperr.NewInputValidation("tags", fmt.Sprintf("at most %d tags allowed", v.MaxTags))
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return apperr.NewInputValidation("tags", "tags must not be empty")
		}
		if utf8.RuneCountInString(tag) > v.MaxTagLength {
			return apperr.NewInputValidation("tags", fmt.Sprintf("tag %q exceeds %d characters", tag, v.MaxTagLength))
		}
	}
	return nil
}

func (h *Handlers) validateText(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apperr.NewInputValidation(field, fmt.Sprintf("exceeds %d characters", max))
	}
	return nil
}

func (h *Handlers) validatePage(page int) error {
	if page < 1 || page > h.cfg.Validation.MaxPageNumber {
		return apperr.NewInputValidation("page", fmt.Sprintf("must be between 1 and %d", h.cfg.Validation.MaxPageNumber))
	}
	return nil
}
