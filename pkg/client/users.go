package client

import (
	"context"
	"net/url"
	"strconv"
)

// UsersClient covers account administration. Most operations need an admin
// token; reading and editing your own account works with any role.
type UsersClient struct {
	client *Client
}

// RegisterUserRequest creates an account.
type RegisterUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	RealName string `json:"real_name"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
	Language string `json:"language,omitempty"`
}

// UserListOptions filter an account listing.
type UserListOptions struct {
	Search string
	Role   string
	Page   Pagination
}

// Register creates an account. Admin only.
// POST /api/v1/users
func (uc *UsersClient) Register(ctx context.Context, req *RegisterUserRequest) (*User, error) {
	if req == nil {
		return nil, invalidArg("request is required")
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return nil, invalidArg("Email, Username and Password are required")
	}
	var u User
	if err := uc.client.post(ctx, "/api/v1/users", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// List pages through accounts. Admin only.
// GET /api/v1/users?search=&role=&page=&page_size=
func (uc *UsersClient) List(ctx context.Context, opts UserListOptions) ([]User, *PaginationResult, error) {
	q := url.Values{}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Role != "" {
		q.Set("role", opts.Role)
	}
	if opts.Page.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page.Page))
	}
	if opts.Page.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.Page.PageSize))
	}
	path := "/api/v1/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp ListResponse[User]
	if err := uc.client.get(ctx, path, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Items, &resp.Pagination, nil
}

// Get returns one account by id.
// GET /api/v1/users/{userID}
func (uc *UsersClient) Get(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, invalidArg("userID is required")
	}
	var u User
	if err := uc.client.get(ctx, "/api/v1/users/"+url.PathEscape(userID), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Delete removes an account. Admin only.
// DELETE /api/v1/users/{userID}
func (uc *UsersClient) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return invalidArg("userID is required")
	}
	return uc.client.delete(ctx, "/api/v1/users/"+url.PathEscape(userID))
}

// SetPassword replaces an account's password.
// PUT /api/v1/users/{userID}/password
func (uc *UsersClient) SetPassword(ctx context.Context, userID, password string) error {
	if userID == "" {
		return invalidArg("userID is required")
	}
	if password == "" {
		return invalidArg("password is required")
	}
	path := "/api/v1/users/" + url.PathEscape(userID) + "/password"
	return uc.client.put(ctx, path, map[string]string{"password": password}, nil)
}

// VerifyEmail marks an account's address as verified. Admin only.
// POST /api/v1/users/{userID}/verify-email
func (uc *UsersClient) VerifyEmail(ctx context.Context, userID string) error {
	if userID == "" {
		return invalidArg("userID is required")
	}
	return uc.client.post(ctx, "/api/v1/users/"+url.PathEscape(userID)+"/verify-email", nil, nil)
}
