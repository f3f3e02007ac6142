package schema

// Kind is a logical collection the engine writes to. The physical collection
// name behind each kind is deployment config, not code.
type Kind string

const (
	KindPost        Kind = "post"
	KindLike        Kind = "like"
	KindFollow      Kind = "follow"
	KindComment     Kind = "comment"
	KindCommentLike Kind = "comment_like"
	KindProfile     Kind = "profile"
)

// Role is a canonical semantic slot in a document, independent of the field
// name a particular deployment chose for it.
type Role string

const (
	RoleAuthor     Role = "author"
	RolePostRef    Role = "post_ref"
	RoleCommentRef Role = "comment_ref"
	RoleFollower   Role = "follower"
	RoleFollowee   Role = "followee"
	RoleText       Role = "text"
	RoleCreatedAt  Role = "created_at"
	RoleVideoURL   Role = "video_url"
	RoleVideoFile  Role = "video_file"
)

// candidates lists field-name spellings per role, highest priority first.
// These are the spellings observed across deployments; the first one is also
// the default used when schema introspection is unavailable.
var candidates = map[Role][]string{
	RoleAuthor:     {"user_id", "userid", "userId"},
	RolePostRef:    {"post_id", "postid", "postId"},
	RoleCommentRef: {"comment_id", "commentid", "commentId"},
	RoleFollower:   {"follower_id", "followerId"},
	RoleFollowee:   {"following_id", "followingId", "followee_id"},
	RoleText:       {"text", "caption", "description", "content"},
	RoleCreatedAt:  {"created_at", "createdAt", "$createdAt"},
	RoleVideoURL:   {"video_url", "videoUrl"},
	RoleVideoFile:  {"video_id", "videoId", "file_id", "fileId"},
}

// kindRoles declares which roles each collection kind carries.
var kindRoles = map[Kind][]Role{
	KindPost:        {RoleAuthor, RoleText, RoleCreatedAt, RoleVideoURL, RoleVideoFile},
	KindLike:        {RoleAuthor, RolePostRef, RoleCreatedAt},
	KindFollow:      {RoleFollower, RoleFollowee, RoleCreatedAt},
	KindComment:     {RoleAuthor, RolePostRef, RoleText, RoleCreatedAt},
	KindCommentLike: {RoleAuthor, RoleCommentRef, RoleCreatedAt},
	KindProfile:     {RoleAuthor, RoleText, RoleCreatedAt},
}

// Candidates returns the ordered spellings for a role.
func Candidates(role Role) []string {
	out := make([]string, len(candidates[role]))
	copy(out, candidates[role])
	return out
}

// Roles returns the roles a collection kind carries.
func Roles(kind Kind) []Role {
	out := make([]Role, len(kindRoles[kind]))
	copy(out, kindRoles[kind])
	return out
}
