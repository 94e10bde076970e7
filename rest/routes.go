package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/luciancaetano/luster"
)

// QueryNode returns the node description, including the events endpoint.
// This call does not need a token.
func (c *Client) QueryNode(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := c.doJSON(ctx, http.MethodGet, "/", nil, &info); err != nil {
		return nil, fmt.Errorf("rest: query node: %w", err)
	}
	return &info, nil
}

// FetchSelf returns the user the token belongs to.
func (c *Client) FetchSelf(ctx context.Context) (*luster.User, error) {
	return c.user(ctx, http.MethodGet, "/users/@me", nil)
}

// EditUser edits the session user and returns the result.
func (c *Client) EditUser(ctx context.Context, req EditUserRequest) (*luster.User, error) {
	return c.user(ctx, http.MethodPatch, "/users/@me", req)
}

// FetchUser implements luster.Fetcher.
func (c *Client) FetchUser(ctx context.Context, userID string) (*luster.User, error) {
	return c.user(ctx, http.MethodGet, "/users/"+escape(userID), nil)
}

// ChangeUsername changes the session user's username. The current password
// is required.
func (c *Client) ChangeUsername(ctx context.Context, req ChangeUsernameRequest) (*luster.User, error) {
	return c.user(ctx, http.MethodPatch, "/users/@me/username", req)
}

// FetchProfile implements luster.Fetcher.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*luster.UserProfile, error) {
	var profile luster.UserProfile
	path := "/users/" + escape(userID) + "/profile"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &profile); err != nil {
		return nil, fmt.Errorf("rest: fetch profile of %s: %w", userID, err)
	}
	return &profile, nil
}

func (c *Client) user(ctx context.Context, method, path string, body any) (*luster.User, error) {
	var user luster.User
	if err := c.doJSON(ctx, method, path, body, &user); err != nil {
		return nil, fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	user.Bind(c)
	return &user, nil
}

// FetchServer implements luster.Fetcher.
func (c *Client) FetchServer(ctx context.Context, serverID string) (*luster.Server, error) {
	return c.server(ctx, http.MethodGet, "/servers/"+escape(serverID), nil)
}

func (c *Client) EditServer(ctx context.Context, serverID string, req EditServerRequest) (*luster.Server, error) {
	return c.server(ctx, http.MethodPatch, "/servers/"+escape(serverID), req)
}

// DeleteServer deletes an owned server, or leaves it otherwise.
func (c *Client) DeleteServer(ctx context.Context, serverID string) error {
	path := "/servers/" + escape(serverID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("rest: delete server %s: %w", serverID, err)
	}
	return nil
}

func (c *Client) server(ctx context.Context, method, path string, body any) (*luster.Server, error) {
	var server luster.Server
	if err := c.doJSON(ctx, method, path, body, &server); err != nil {
		return nil, fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	server.Bind(c)
	return &server, nil
}

func (c *Client) FetchChannel(ctx context.Context, channelID string) (*luster.Channel, error) {
	return c.channel(ctx, http.MethodGet, "/channels/"+escape(channelID), nil)
}

func (c *Client) EditChannel(ctx context.Context, channelID string, req EditChannelRequest) (*luster.Channel, error) {
	return c.channel(ctx, http.MethodPatch, "/channels/"+escape(channelID), req)
}

// DeleteChannel deletes a server channel, leaves a group or closes a DM.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	path := "/channels/" + escape(channelID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("rest: delete channel %s: %w", channelID, err)
	}
	return nil
}

// CreateGroup creates a group channel with the given members.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*luster.Channel, error) {
	return c.channel(ctx, http.MethodPost, "/channels/create", req)
}

func (c *Client) AddGroupMember(ctx context.Context, groupID, userID string) error {
	path := "/channels/" + escape(groupID) + "/recipients/" + escape(userID)
	if err := c.doJSON(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("rest: add %s to group %s: %w", userID, groupID, err)
	}
	return nil
}

func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	path := "/channels/" + escape(groupID) + "/recipients/" + escape(userID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("rest: remove %s from group %s: %w", userID, groupID, err)
	}
	return nil
}

func (c *Client) channel(ctx context.Context, method, path string, body any) (*luster.Channel, error) {
	var channel luster.Channel
	if err := c.doJSON(ctx, method, path, body, &channel); err != nil {
		return nil, fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	channel.Bind(c)
	return &channel, nil
}

func (c *Client) CreateRole(ctx context.Context, serverID string, req CreateRoleRequest) (*CreateRoleResponse, error) {
	var created CreateRoleResponse
	path := "/servers/" + escape(serverID) + "/roles"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &created); err != nil {
		return nil, fmt.Errorf("rest: create role in %s: %w", serverID, err)
	}
	return &created, nil
}

func (c *Client) EditRole(ctx context.Context, serverID, roleID string, req EditRoleRequest) (*luster.Role, error) {
	var role luster.Role
	path := "/servers/" + escape(serverID) + "/roles/" + escape(roleID)
	if err := c.doJSON(ctx, http.MethodPatch, path, req, &role); err != nil {
		return nil, fmt.Errorf("rest: edit role %s: %w", roleID, err)
	}
	return &role, nil
}

func (c *Client) DeleteRole(ctx context.Context, serverID, roleID string) error {
	path := "/servers/" + escape(serverID) + "/roles/" + escape(roleID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("rest: delete role %s: %w", roleID, err)
	}
	return nil
}

// UploadFile uploads r to the file server bucket tag as filename.
func (c *Client) UploadFile(ctx context.Context, tag Tag, filename string, r io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("rest: build upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("rest: read upload %s: %w", filename, err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("rest: build upload form: %w", err)
	}

	path := "/" + escape(string(tag))
	data, err := c.do(ctx, http.MethodPost, c.fileServerURL+path, form.FormDataContentType(), &buf)
	if err != nil {
		return nil, fmt.Errorf("rest: upload %s: %w", filename, err)
	}

	var uploaded UploadResponse
	if err := decode(data, &uploaded, http.MethodPost, path); err != nil {
		return nil, err
	}
	return &uploaded, nil
}
