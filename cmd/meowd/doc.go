// Command meowd is a paste bin server. Clients POST a body to "/" and get
// back a URL made of a few random words; a GET to that URL returns the body.
//
//	curl --data-binary @notes.txt https://paste.example.com
//
// Configuration is read from an rjson file, by default
// $HOME/lib/meow/meowd.config, and from the environment, optionally loaded
// from a .env file in the working directory. Environment variables take
// precedence: PORT, BASE_URL, S3_ENDPOINT, S3_BUCKET, S3_REGION,
// S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, MEOW_STORAGE, MEOW_ROOT,
// MEOW_KEY_LENGTH and MEOW_DEBUG. A minimal configuration file looks like:
//
//	{
//		base_url: "https://paste.example.com/"
//		storage: {
//			type: "s3"
//			region: "eu-west-1"
//			bucket: "pastes"
//		}
//	}
//
// Storage types are disk (the default), s3, minio, bolt and memory.
//
// Bodies are streamed to and from storage. The server never holds a whole
// paste in memory, except with the memory storage type.
package main // import "github.com/nicolagi/meow/cmd/meowd"
