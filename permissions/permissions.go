// Package permissions centralizes every authorization decision in the
// marketplace. All predicates are pure functions over state snapshots
// passed in by the caller: banned actors are denied first, then admins
// are granted access, except for lane checks which apply to everyone.
package permissions

import "trafficlane/auth"

// OrderInfo is the minimal order snapshot a predicate needs. The order
// package converts its own records into this view to avoid a dependency
// cycle.
type OrderInfo struct {
	BuyerID  string
	SellerID string
	Status   string
}

// orderStatusActive mirrors order.StatusActive; disputes may only be
// opened against active orders.
const orderStatusActive = "ACTIVE"

// CanAccessLane reports whether the user may see or trade in the lane.
// CLEAN is open to every non-banned account; PRIVATE requires explicit
// lane access.
func CanAccessLane(user auth.User, lane auth.Lane) bool {
	if user.IsBanned {
		return false
	}
	if user.Role == auth.RoleAdmin {
		return true
	}

	switch lane {
	case auth.LaneClean:
		return true
	case auth.LanePrivate:
		return user.LaneAccess == auth.LanePrivate
	default:
		return false
	}
}

// CanCreateListing requires a selling role, admin approval, and an
// existing seller profile.
func CanCreateListing(user auth.User, hasSellerProfile bool) bool {
	if user.IsBanned {
		return false
	}
	if user.Role == auth.RoleAdmin {
		return true
	}

	return (user.Role == auth.RoleSeller || user.Role == auth.RoleBoth) &&
		user.IsApproved &&
		hasSellerProfile
}

// CanPurchase reports whether the user may buy traffic.
func CanPurchase(user auth.User) bool {
	if user.IsBanned {
		return false
	}

	return user.Role == auth.RoleBuyer || user.Role == auth.RoleBoth || user.Role == auth.RoleAdmin
}

// CanManageOrder is true for the order's buyer or seller; admins bypass.
func CanManageOrder(user auth.User, order OrderInfo) bool {
	if user.IsBanned {
		return false
	}
	if user.Role == auth.RoleAdmin {
		return true
	}

	return order.BuyerID == user.ID || order.SellerID == user.ID
}

// CanViewOrder matches CanManageOrder: only the parties and admins may
// read an order.
func CanViewOrder(user auth.User, order OrderInfo) bool {
	return CanManageOrder(user, order)
}

// CanOpenDispute allows the buyer or seller of an ACTIVE order to
// contest it.
func CanOpenDispute(user auth.User, order OrderInfo) bool {
	if user.IsBanned {
		return false
	}
	if user.Role == auth.RoleAdmin {
		return true
	}

	return (order.BuyerID == user.ID || order.SellerID == user.ID) &&
		order.Status == orderStatusActive
}

// CanResolveDispute is admin-only.
func CanResolveDispute(user auth.User) bool {
	return user.Role == auth.RoleAdmin && !user.IsBanned
}

// CanApproveSeller is admin-only.
func CanApproveSeller(user auth.User) bool {
	return user.Role == auth.RoleAdmin && !user.IsBanned
}

// CanModerateUsers gates ban/unban and lane grants; admin-only.
func CanModerateUsers(user auth.User) bool {
	return user.Role == auth.RoleAdmin && !user.IsBanned
}

// CanEditListing allows the owning seller or an admin to mutate a listing.
func CanEditListing(user auth.User, ownerUserID string) bool {
	if user.IsBanned {
		return false
	}
	if user.Role == auth.RoleAdmin {
		return true
	}

	return ownerUserID == user.ID
}
