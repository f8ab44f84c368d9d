// Package remote implements the message transport contract: an in-process
// store for tests and local runs, and an HTTP client for the relay dev
// server. Both deliver room changes as incremental batches ordered by
// creation time, opening with the room's current contents.
package remote
