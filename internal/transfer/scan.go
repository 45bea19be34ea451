package transfer

import (
	"context"
	"errors"
	"strings"

	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/parse"
	"canister-transfer-backend/internal/store"
)

// findDrawer looks a scan up as a printed "<device> <drawer>" label first, then as a
// drawer serial number.
func (m *Machine) findDrawer(ctx context.Context, code string) (*model.Container, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}
	if label, err := parse.ParseLocationLabel(code); err == nil {
		c, err := m.store.FindContainerByName(ctx, label.Device, label.Drawer)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return m.store.FindContainerBySerial(ctx, code)
}
