package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/parser"
)

// Confidence tiers for image extraction. At or above ConfidenceAuto the
// result is saved silently; at or above ConfidenceConfirm the user is
// asked; below that the pipeline asks for clarification instead of
// guessing. The gate is tuned to bias toward confirmation over silently
// saving a wrong number.
const (
	ConfidenceAuto    = 0.85
	ConfidenceConfirm = 0.5
)

// processImage runs the confidence-gated pipeline for a photographed
// receipt. A parseable caption takes precedence over anything in the image
// and skips the gate entirely.
func (e *Engine) processImage(ctx context.Context, user *api.User, msg api.InboundMessage) error {
	caption := strings.TrimSpace(msg.Body)

	if caption != "" {
		if cand := parser.Parse(caption); cand != nil {
			img := e.uploadMedia(ctx, user, msg)
			exp, err := e.saveExpense(ctx, user, cand.Item, cand.Price, "", img)
			if err != nil {
				return e.failTemporary(ctx, user.ID, err)
			}
			return e.replySummary(ctx, user, exp, "Saved")
		}
	}

	if e.extractor == nil {
		return e.reply(ctx, user.ID,
			"I can't read photos right now — type the expense instead, like: Coffee 120.")
	}

	payload, err := e.downloadMedia(ctx, msg)
	if err != nil {
		e.logger.Warn("media download failed", "user", user.ID, "error", err)
		return e.reply(ctx, user.ID,
			"I couldn't fetch that photo. Please resend it, or type the expense like: Coffee 120.")
	}

	dataURL := "data:" + payload.MimeType + ";base64," + base64.StdEncoding.EncodeToString(payload.Data)
	ext, err := e.extractor.FromImage(ctx, dataURL, caption)
	if err != nil {
		e.logger.Warn("image extraction failed", "user", user.ID, "error", err)
		ext = &api.Extraction{}
	}

	hint := captionHint(caption)

	switch {
	case ext.Confidence >= ConfidenceAuto:
		item := ext.Item
		if hint != "" {
			item = hint
		}
		img := e.uploadPayload(ctx, user, payload)
		// Stored with the user's preferred currency, never the raw
		// detected one.
		exp, err := e.saveExpense(ctx, user, item, ext.Price, "", img)
		if err != nil {
			return e.failTemporary(ctx, user.ID, err)
		}
		return e.replySummary(ctx, user, exp, "Saved")

	case ext.Confidence >= ConfidenceConfirm:
		img := e.uploadPayload(ctx, user, payload)
		pending := api.PendingAction{
			Kind: api.PendingOCRConfirmation,
			Draft: &api.ExpenseDraft{
				Item:       ext.Item,
				Price:      ext.Price,
				Currency:   ext.Currency,
				Confidence: ext.Confidence,
				Image:      img,
			},
		}
		if err := e.setPending(ctx, user, pending, api.StateAwaitingOCRConfirm); err != nil {
			return e.failTemporary(ctx, user.ID, err)
		}
		return e.reply(ctx, user.ID, fmt.Sprintf(
			"Looks like %s for %.2f — save it? Reply YES or NO.", ext.Item, ext.Price))

	default:
		if hint != "" {
			img := e.uploadPayload(ctx, user, payload)
			pending := api.PendingAction{
				Kind: api.PendingOCRConfirmation,
				Draft: &api.ExpenseDraft{
					Item:        hint,
					Confidence:  ext.Confidence,
					NeedsAmount: true,
					Image:       img,
				},
			}
			if err := e.setPending(ctx, user, pending, api.StateAwaitingOCRConfirm); err != nil {
				return e.failTemporary(ctx, user.ID, err)
			}
			return e.reply(ctx, user.ID, fmt.Sprintf(
				"I couldn't read the amount. How much was %q? Reply with just the number, or the full line like %s 120.",
				hint, hint))
		}
		// No state change here; the user stays active.
		return e.reply(ctx, user.ID,
			"I couldn't read that receipt. Send a clearer photo, or type it like: Coffee 120.")
	}
}

// captionHint returns the caption when it looks like a bare label (no
// digits), usable as an item-name anchor for low-confidence extractions.
func captionHint(caption string) string {
	if caption == "" {
		return ""
	}
	for _, r := range caption {
		if unicode.IsDigit(r) {
			return ""
		}
	}
	return caption
}

func (e *Engine) downloadMedia(ctx context.Context, msg api.InboundMessage) (*api.MediaPayload, error) {
	if msg.DownloadMedia == nil {
		return nil, fmt.Errorf("message %s has no media downloader", msg.ID)
	}
	payload, err := msg.DownloadMedia(ctx)
	if err != nil {
		return nil, err
	}
	if payload == nil || len(payload.Data) == 0 {
		return nil, fmt.Errorf("media for message %s is empty", msg.ID)
	}
	return payload, nil
}

// uploadMedia downloads and hosts the attachment in one step, for the
// caption-precedence path. Hosting is best effort; a failed upload never
// blocks saving the expense.
func (e *Engine) uploadMedia(ctx context.Context, user *api.User, msg api.InboundMessage) *api.ImageRef {
	if e.images == nil {
		return nil
	}
	payload, err := e.downloadMedia(ctx, msg)
	if err != nil {
		e.logger.Warn("media download failed", "user", user.ID, "error", err)
		return nil
	}
	return e.uploadPayload(ctx, user, payload)
}

func (e *Engine) uploadPayload(ctx context.Context, user *api.User, payload *api.MediaPayload) *api.ImageRef {
	if e.images == nil || payload == nil {
		return nil
	}
	name := payload.Filename
	if name == "" {
		name = "receipt"
	}
	ref, err := e.images.Upload(ctx, payload.Data, payload.MimeType, name, user.ID)
	if err != nil {
		e.logger.Warn("image upload failed", "user", user.ID, "error", err)
		return nil
	}
	return ref
}
