// Package password hashes and verifies account passwords.
//
// New hashes use argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes ($2a$/$2b$/$2y$) still verify, and [Hasher.NeedsRehash]
// reports them so the caller can re-hash on the next successful login.
package password
