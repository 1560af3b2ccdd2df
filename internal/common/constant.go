package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// DeviceHeaderName carries the originating device id for diagnostics.
const DeviceHeaderName = "device_id"
