package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

const (
	feedshareImageRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
	uploadMechanismKey   = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
)

// RegisterUploadRequest is the request body for /assets?action=registerUpload
type RegisterUploadRequest struct {
	RegisterUploadRequest RegisterUploadInner `json:"registerUploadRequest"`
}

// RegisterUploadInner describes the asset being registered
type RegisterUploadInner struct {
	Recipes              []string              `json:"recipes"`
	Owner                string                `json:"owner"`
	ServiceRelationships []ServiceRelationship `json:"serviceRelationships"`
}

// ServiceRelationship ties the asset to user generated content
type ServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

// RegisterUploadResponse is the response from registerUpload
type RegisterUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"` // urn:li:digitalmediaAsset:xxx
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

// UploadSlot is a registered asset and where to PUT its bytes
type UploadSlot struct {
	Asset     string
	UploadURL string
}

// UGCPostRequest is the ugcPosts body for an image share
type UGCPostRequest struct {
	Author          string            `json:"author"`
	LifecycleState  string            `json:"lifecycleState"`
	SpecificContent SpecificContent   `json:"specificContent"`
	Visibility      map[string]string `json:"visibility"`
}

// SpecificContent wraps the share content
type SpecificContent struct {
	ShareContent ShareContent `json:"com.linkedin.ugc.ShareContent"`
}

// ShareContent is the commentary and attached media
type ShareContent struct {
	ShareCommentary    Text         `json:"shareCommentary"`
	ShareMediaCategory string       `json:"shareMediaCategory"`
	Media              []ShareMedia `json:"media"`
}

// ShareMedia references an uploaded asset
type ShareMedia struct {
	Status      string `json:"status"`
	Description Text   `json:"description"`
	Media       string `json:"media"`
	Title       Text   `json:"title"`
}

// Text is LinkedIn's attributed text wrapper
type Text struct {
	Text string `json:"text"`
}

// RegisterUpload registers an image asset owned by owner
func (c *Client) RegisterUpload(ctx context.Context, owner string) (*UploadSlot, error) {
	reqBody := RegisterUploadRequest{
		RegisterUploadRequest: RegisterUploadInner{
			Recipes: []string{feedshareImageRecipe},
			Owner:   owner,
			ServiceRelationships: []ServiceRelationship{{
				RelationshipType: "OWNER",
				Identifier:       "urn:li:userGeneratedContent",
			}},
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/assets?action=registerUpload", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, statusError("register upload", resp)
	}

	var out RegisterUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	mech, ok := out.Value.UploadMechanism[uploadMechanismKey]
	if !ok || mech.UploadURL == "" || out.Value.Asset == "" {
		return nil, fmt.Errorf("register upload: response carries no upload url or asset")
	}

	c.log.Info().
		Str("asset", out.Value.Asset).
		Msg("Image upload registered")

	return &UploadSlot{Asset: out.Value.Asset, UploadURL: mech.UploadURL}, nil
}

// UploadImage PUTs the raw PNG bytes to a registered upload URL
func (c *Client) UploadImage(ctx context.Context, uploadURL string, imageData []byte) error {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterLinkedIn); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}
	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(imageData))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.ErrTransient, "upload image", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("upload image", resp)
	}

	c.log.Info().
		Str("size", humanize.Bytes(uint64(len(imageData)))).
		Msg("Image uploaded successfully")

	return nil
}

// CreateImagePost publishes a public image share and returns the post URN
func (c *Client) CreateImagePost(ctx context.Context, author, title, text, asset string) (string, error) {
	postReq := UGCPostRequest{
		Author:         author,
		LifecycleState: "PUBLISHED",
		SpecificContent: SpecificContent{
			ShareContent: ShareContent{
				ShareCommentary:    Text{Text: text},
				ShareMediaCategory: "IMAGE",
				Media: []ShareMedia{{
					Status:      "READY",
					Description: Text{Text: title},
					Media:       asset,
					Title:       Text{Text: title},
				}},
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/ugcPosts", postReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", statusError("create post", resp)
	}

	postURN := resp.Header.Get("X-RestLi-Id")
	if postURN == "" {
		var body struct {
			ID string `json:"id"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			postURN = body.ID
		}
	}

	c.log.Info().
		Str("post_urn", postURN).
		Str("asset", asset).
		Msg("Image post created successfully")

	return postURN, nil
}

// Publish uploads the image and creates the post in a single attempt.
// Failures are returned as is, nothing is retried.
func (c *Client) Publish(ctx context.Context, title, text, imagePath string) (string, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	author, err := c.AuthorURN(ctx)
	if err != nil {
		return "", err
	}

	content, truncated := sanitize(text)
	if content != text {
		// the published post differs from the archived preview
		c.log.Warn().
			Int("original_runes", utf8.RuneCountInString(text)).
			Int("published_runes", utf8.RuneCountInString(content)).
			Bool("truncated", truncated).
			Msg("Post text altered for LinkedIn")
	}

	slot, err := c.RegisterUpload(ctx, author)
	if err != nil {
		return "", err
	}
	if err := c.UploadImage(ctx, slot.UploadURL, imageData); err != nil {
		return "", err
	}
	return c.CreateImagePost(ctx, author, Sanitize(title), content, slot.Asset)
}
