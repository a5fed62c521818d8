package telship

// Version is the telship release, sent in the User-Agent header.
const Version = "1.0.0"
