// Package storage holds the on-disk parts of the bot.
//
//   - BlobStore keeps one APK file per slot; file presence is availability.
//   - Store is the admin audit log (file or sqlite driver).
package storage
