package syntax

import (
	"github.com/t14raptor/go-fast/ast"
)

// Kind is a closed enumeration over the node shapes the engine reasons about.
// Shapes the engine has no rule for map to KindOther and are traversed but
// never collected or rewritten.
type Kind uint8

const (
	KindOther Kind = iota
	KindProgram

	KindIdentifier
	KindNumberLiteral
	KindStringLiteral
	KindBooleanLiteral
	KindNullLiteral
	KindRegExpLiteral
	KindTemplateLiteral
	KindArrayLiteral
	KindObjectLiteral
	KindMemberExpression
	KindCallExpression
	KindNewExpression
	KindAssignExpression
	KindUpdateExpression
	KindUnaryExpression
	KindBinaryExpression
	KindConditionalExpression
	KindSequenceExpression
	KindSpreadElement
	KindFunctionLiteral
	KindArrowFunctionLiteral

	KindExpressionStatement
	KindBlockStatement
	KindVariableDeclaration
	KindFunctionDeclaration
	KindClassDeclaration
	KindReturnStatement
	KindIfStatement
	KindForStatement
	KindForInStatement
	KindWhileStatement
	KindDoWhileStatement
	KindSwitchStatement
	KindTryStatement
	KindBreakStatement
)

var kindNames = map[Kind]string{
	KindOther:                 "Other",
	KindProgram:               "Program",
	KindIdentifier:            "Identifier",
	KindNumberLiteral:         "NumberLiteral",
	KindStringLiteral:         "StringLiteral",
	KindBooleanLiteral:        "BooleanLiteral",
	KindNullLiteral:           "NullLiteral",
	KindRegExpLiteral:         "RegExpLiteral",
	KindTemplateLiteral:       "TemplateLiteral",
	KindArrayLiteral:          "ArrayLiteral",
	KindObjectLiteral:         "ObjectLiteral",
	KindMemberExpression:      "MemberExpression",
	KindCallExpression:        "CallExpression",
	KindNewExpression:         "NewExpression",
	KindAssignExpression:      "AssignExpression",
	KindUpdateExpression:      "UpdateExpression",
	KindUnaryExpression:       "UnaryExpression",
	KindBinaryExpression:      "BinaryExpression",
	KindConditionalExpression: "ConditionalExpression",
	KindSequenceExpression:    "SequenceExpression",
	KindSpreadElement:         "SpreadElement",
	KindFunctionLiteral:       "FunctionLiteral",
	KindArrowFunctionLiteral:  "ArrowFunctionLiteral",
	KindExpressionStatement:   "ExpressionStatement",
	KindBlockStatement:        "BlockStatement",
	KindVariableDeclaration:   "VariableDeclaration",
	KindFunctionDeclaration:   "FunctionDeclaration",
	KindClassDeclaration:      "ClassDeclaration",
	KindReturnStatement:       "ReturnStatement",
	KindIfStatement:           "IfStatement",
	KindForStatement:          "ForStatement",
	KindForInStatement:        "ForInStatement",
	KindWhileStatement:        "WhileStatement",
	KindDoWhileStatement:      "DoWhileStatement",
	KindSwitchStatement:       "SwitchStatement",
	KindTryStatement:          "TryStatement",
	KindBreakStatement:        "BreakStatement",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Other"
}

// IsLiteral reports whether the kind carries no evaluable structure of its
// own; such nodes are never pushed onto the collector worklist.
func (k Kind) IsLiteral() bool {
	switch k {
	case KindNumberLiteral, KindStringLiteral, KindBooleanLiteral,
		KindNullLiteral, KindRegExpLiteral:
		return true
	default:
		return false
	}
}

// IsFunction reports whether the kind introduces a function scope.
func (k Kind) IsFunction() bool {
	switch k {
	case KindFunctionLiteral, KindArrowFunctionLiteral, KindFunctionDeclaration:
		return true
	default:
		return false
	}
}

// IsCollectable reports whether a node of this kind carries independent
// meaning when hoisted into an extracted fragment.
func (k Kind) IsCollectable() bool {
	switch k {
	case KindCallExpression, KindFunctionDeclaration, KindFunctionLiteral,
		KindArrowFunctionLiteral, KindAssignExpression, KindVariableDeclaration:
		return true
	default:
		return false
	}
}

// IsTraversalAid reports whether a node of this kind is useful only while
// walking (it cannot stand alone in a reconstructed fragment).
func (k Kind) IsTraversalAid() bool {
	return k == KindIdentifier || k == KindMemberExpression || k.IsLiteral()
}

func stmtKind(s ast.Stmt) Kind {
	switch s.(type) {
	case *ast.ExpressionStatement:
		return KindExpressionStatement
	case *ast.BlockStatement:
		return KindBlockStatement
	case *ast.VariableDeclaration:
		return KindVariableDeclaration
	case *ast.FunctionDeclaration:
		return KindFunctionDeclaration
	case *ast.ClassDeclaration:
		return KindClassDeclaration
	case *ast.ReturnStatement:
		return KindReturnStatement
	case *ast.IfStatement:
		return KindIfStatement
	case *ast.ForStatement:
		return KindForStatement
	case *ast.ForInStatement:
		return KindForInStatement
	case *ast.WhileStatement:
		return KindWhileStatement
	case *ast.DoWhileStatement:
		return KindDoWhileStatement
	case *ast.SwitchStatement:
		return KindSwitchStatement
	case *ast.TryStatement:
		return KindTryStatement
	case *ast.BreakStatement:
		return KindBreakStatement
	default:
		return KindOther
	}
}

func exprKind(e ast.Expr) Kind {
	switch e.(type) {
	case *ast.Identifier:
		return KindIdentifier
	case *ast.NumberLiteral:
		return KindNumberLiteral
	case *ast.StringLiteral:
		return KindStringLiteral
	case *ast.BooleanLiteral:
		return KindBooleanLiteral
	case *ast.NullLiteral:
		return KindNullLiteral
	case *ast.RegExpLiteral:
		return KindRegExpLiteral
	case *ast.TemplateLiteral:
		return KindTemplateLiteral
	case *ast.ArrayLiteral:
		return KindArrayLiteral
	case *ast.ObjectLiteral:
		return KindObjectLiteral
	case *ast.MemberExpression:
		return KindMemberExpression
	case *ast.CallExpression:
		return KindCallExpression
	case *ast.NewExpression:
		return KindNewExpression
	case *ast.AssignExpression:
		return KindAssignExpression
	case *ast.UpdateExpression:
		return KindUpdateExpression
	case *ast.UnaryExpression:
		return KindUnaryExpression
	case *ast.BinaryExpression:
		return KindBinaryExpression
	case *ast.ConditionalExpression:
		return KindConditionalExpression
	case *ast.SequenceExpression:
		return KindSequenceExpression
	case *ast.SpreadElement:
		return KindSpreadElement
	case *ast.FunctionLiteral:
		return KindFunctionLiteral
	case *ast.ArrowFunctionLiteral:
		return KindArrowFunctionLiteral
	default:
		return KindOther
	}
}
