package kernel

import (
	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
)

// KeyCreate allocates a thread-local key, seeds its value with 0 and stores
// the key at keyPtr. Like pthread_key_create it returns 0 or a positive
// errno. Keys are process-wide; there is only one thread.
func (k *Kernel) KeyCreate(keyPtr uint32) int32 {
	key := k.nextKey
	if err := k.mem.WriteI32(keyPtr, key); err != nil {
		return kerrors.EFAULT
	}
	k.nextKey++
	k.tls[key] = 0
	return 0
}

// GetSpecific returns the last value set for key, or 0.
func (k *Kernel) GetSpecific(key int32) int32 {
	return k.tls[key]
}

// SetSpecific records value for key and returns 0.
func (k *Kernel) SetSpecific(key, value int32) int32 {
	k.tls[key] = value
	return 0
}
