package common

// PartialSuffix marks an upload that has not been completed yet.
const PartialSuffix = ".partial"

// RequestIDHeader carries the per-request id assigned by the router.
const RequestIDHeader = "X-Request-Id"
