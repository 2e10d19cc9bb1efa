// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides token and code generation utilities.

# Member Tokens

Member tokens are random 24-byte (192-bit) secrets:

	token, err := auth.GenerateMemberToken()

Tokens are URL-safe base64 encoded and presented in the X-Member-Token
header to authenticate votes, day responses, and RSVPs. Each member gets
a unique token when creating or joining a group.

# Join Codes

Join codes create short, typeable identifiers for inviting people into
a group:

	code := auth.GenerateJoinCode(groupID, salt)

Codes are base62 encoded (alphanumeric only). They are deterministic
from the group ID and salt, so the server never has to store a second
secret per group.

# IP Hashing

For privacy-preserving abuse bookkeeping on vote rows:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
