package rest

import "github.com/luciancaetano/luster"

// NodeInfo describes an API node, as returned by QueryNode.
type NodeInfo struct {
	Revolt   string       `json:"revolt"`
	Features NodeFeatures `json:"features"`
	// WS is the events endpoint.
	WS    string `json:"ws"`
	App   string `json:"app"`
	Vapid string `json:"vapid"`
}

type NodeFeatures struct {
	Captcha    CaptchaFeature `json:"captcha"`
	Email      bool           `json:"email"`
	InviteOnly bool           `json:"invite_only"`
	Autumn     ServiceFeature `json:"autumn"`
	January    ServiceFeature `json:"january"`
	Voso       VoiceFeature   `json:"voso"`
}

type CaptchaFeature struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key"`
}

type ServiceFeature struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

type VoiceFeature struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	WS      string `json:"ws"`
}

// EditUserRequest edits the session user. Nil fields are left unchanged;
// Remove lists fields to clear, using the removed-field labels of
// UserUpdate events.
type EditUserRequest struct {
	DisplayName *string             `json:"display_name,omitempty"`
	Avatar      *string             `json:"avatar,omitempty"`
	Status      *luster.UserStatus  `json:"status,omitempty"`
	Profile     *EditProfileRequest `json:"profile,omitempty"`
	Badges      *int64              `json:"badges,omitempty"`
	Flags       *int64              `json:"flags,omitempty"`
	Remove      []string            `json:"remove,omitempty"`
}

type EditProfileRequest struct {
	Content    *string `json:"content,omitempty"`
	Background *string `json:"background,omitempty"`
}

type ChangeUsernameRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type EditServerRequest struct {
	Name           *string                `json:"name,omitempty"`
	Description    *string                `json:"description,omitempty"`
	Icon           *string                `json:"icon,omitempty"`
	Banner         *string                `json:"banner,omitempty"`
	Categories     []luster.Category      `json:"categories,omitempty"`
	SystemMessages *luster.SystemMessages `json:"system_messages,omitempty"`
	NSFW           *bool                  `json:"nsfw,omitempty"`
	Discoverable   *bool                  `json:"discoverable,omitempty"`
	Analytics      *bool                  `json:"analytics,omitempty"`
	Remove         []string               `json:"remove,omitempty"`
}

type EditChannelRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Icon        *string  `json:"icon,omitempty"`
	NSFW        *bool    `json:"nsfw,omitempty"`
	Archived    *bool    `json:"archived,omitempty"`
	Remove      []string `json:"remove,omitempty"`
}

type CreateRoleRequest struct {
	Name string `json:"name"`
	Rank *int64 `json:"rank,omitempty"`
}

// CreateRoleResponse carries the new role and its ID.
type CreateRoleResponse struct {
	ID   string      `json:"id"`
	Role luster.Role `json:"role"`
}

type EditRoleRequest struct {
	Name   *string  `json:"name,omitempty"`
	Colour *string  `json:"colour,omitempty"`
	Hoist  *bool    `json:"hoist,omitempty"`
	Rank   *int64   `json:"rank,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Users       []string `json:"users,omitempty"`
	NSFW        bool     `json:"nsfw,omitempty"`
}

// UploadResponse identifies an uploaded file; pass ID wherever an edit
// request takes a file.
type UploadResponse struct {
	ID string `json:"id"`
}

// Tag is the file server bucket an upload goes to.
type Tag string

const (
	TagAttachments Tag = "attachments"
	TagAvatars     Tag = "avatars"
	TagBackgrounds Tag = "backgrounds"
	TagIcons       Tag = "icons"
	TagBanners     Tag = "banners"
	TagEmojis      Tag = "emojis"
)

// Ptr returns a pointer to v, for the optional fields of edit requests.
func Ptr[T any](v T) *T {
	return &v
}
