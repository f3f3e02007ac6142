package config

import "os"

type Config struct {
	Port                    string
	Env                     string
	FirebaseCredentialsPath string
	PostgresUrl             string

	// Document store backend: "mongo" or "rest".
	StoreBackend  string
	MongoURI      string
	MongoDatabase string

	// Hosted document API, used when StoreBackend is "rest".
	RestEndpoint   string
	RestProject    string
	RestAPIKey     string
	RestDatabaseID string

	// Collection names, overridable per deployment since hosted projects
	// name them differently.
	PostsCollection        string
	LikesCollection        string
	FollowsCollection      string
	CommentsCollection     string
	CommentLikesCollection string

	// Object storage for signing playback URLs of uploaded files.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() *Config {
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase_credentials.json"),
		PostgresUrl:             getEnv("POSTGRES_CONN_STR", ""),

		StoreBackend:  getEnv("STORE_BACKEND", "mongo"),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "clipfeed"),

		RestEndpoint:   getEnv("REST_STORE_ENDPOINT", ""),
		RestProject:    getEnv("REST_STORE_PROJECT", ""),
		RestAPIKey:     getEnv("REST_STORE_API_KEY", ""),
		RestDatabaseID: getEnv("REST_STORE_DATABASE_ID", ""),

		PostsCollection:        getEnv("POSTS_COLLECTION", "posts"),
		LikesCollection:        getEnv("LIKES_COLLECTION", "likes"),
		FollowsCollection:      getEnv("FOLLOWS_COLLECTION", "follows"),
		CommentsCollection:     getEnv("COMMENTS_COLLECTION", "comments"),
		CommentLikesCollection: getEnv("COMMENT_LIKES_COLLECTION", "comment_likes"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "clipfeed-videos"),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
