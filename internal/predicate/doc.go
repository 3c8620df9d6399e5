// Package predicate implements the Mongo-like document matcher shared by
// Base.query/count and the SubscriptionRegistry, plus an optional
// raw-expression filter built on CEL for callers that need to express
// conditions the structured operator set cannot.
//
// A predicate is a map from field name to a condition. A condition is
// either a literal (matched by strict equality) or a map of operator to
// operand ($eq, $ne, $lt, $lte, $gt, $gte, $in, $nin, $regex, $sw). An
// unknown operator or malformed condition makes that field fail to match,
// never an error returned to the caller; see Match.
package predicate
