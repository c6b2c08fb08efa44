package middleware

import "context"

type sellerKey struct{}

// SellerIDFromContext returns the seller set by SellerContext, or "".
func SellerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sellerKey{}).(string)
	return id
}

func WithSellerID(ctx context.Context, sellerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sellerKey{}, sellerID)
}
