package idfy

import (
	"context"
	"encoding/json"
)

// aadhaarProxyGroup is the group the Aadhaar OCR proxy files tasks under.
const aadhaarProxyGroup = "aadhaar_ocr_plus"

// ProxyAadhaar submits an Aadhaar OCR task with QR and last-4-digit extraction.
func (c *Client) ProxyAadhaar(ctx context.Context, sessionID, imageURL string) (int, json.RawMessage, error) {
	return c.SubmitRaw(ctx, TaskAadhaar, sessionID, aadhaarProxyGroup, map[string]any{
		"document1": imageURL,
		"consent":   "yes",
		"advanced_details": map[string]any{
			"extract_qr_info":      true,
			"extract_last_4_digit": true,
		},
	})
}

// ProxyPAN submits a PAN OCR task.
func (c *Client) ProxyPAN(ctx context.Context, sessionID, imageURL string) (int, json.RawMessage, error) {
	return c.SubmitRaw(ctx, TaskPAN, sessionID, c.cfg.ProxyGroupID, map[string]any{
		"document1": imageURL,
	})
}

// ProxyLiveness submits a photo liveness task.
func (c *Client) ProxyLiveness(ctx context.Context, sessionID, imageURL string) (int, json.RawMessage, error) {
	return c.SubmitRaw(ctx, TaskLiveness, sessionID, c.cfg.ProxyGroupID, map[string]any{
		"document1":           imageURL,
		"detect_face_mask":    true,
		"detect_front_facing": true,
		"detect_nsfw":         true,
	})
}

// ProxyFaceMatch submits a face comparison task between two image URLs.
func (c *Client) ProxyFaceMatch(ctx context.Context, sessionID, image1URL, image2URL string) (int, json.RawMessage, error) {
	return c.SubmitRaw(ctx, TaskFaceCompare, sessionID, c.cfg.ProxyGroupID, map[string]any{
		"document1": image1URL,
		"document2": image2URL,
	})
}
