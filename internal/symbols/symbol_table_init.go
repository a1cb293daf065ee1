package symbols

import (
	"fmt"
	"sync"

	"github.com/funvibe/fir/internal/typesystem"
)

// BuiltinModule names the module that owns the builtin declarations.
const BuiltinModule = "<builtins>"

// Singleton table of builtin declarations shared by every session.
var (
	builtinTable *Table
	builtinOnce  sync.Once
)

// builtinConstructors lists the classes that can be instantiated, with
// their primary constructor parameters.
var builtinConstructors = map[string]string{
	"Any":  "",
	"Pair": "first: A, second: B",
}

// builtinMembers maps a builtin class to its member declarations.
var builtinMembers = map[string][]string{
	"Any": {
		"fun toString(): String",
		"fun hashCode(): Int",
		"fun equals(other: Any?): Boolean",
	},
	"Comparable": {"fun compareTo(other: T): Int"},
	"CharSequence": {
		"val length: Int",
		"fun get(index: Int): Char",
	},
	"String": {
		"val length: Int",
		"fun get(index: Int): Char",
		"fun plus(other: Any?): String",
		"fun uppercase(): String",
		"fun compareTo(other: String): Int",
	},
	"Int": {
		"fun plus(other: Int): Int",
		"fun plus(other: Long): Long",
		"fun plus(other: Double): Double",
		"fun minus(other: Int): Int",
		"fun times(other: Int): Int",
		"fun compareTo(other: Int): Int",
		"fun toLong(): Long",
		"fun toDouble(): Double",
	},
	"Long": {
		"fun plus(other: Long): Long",
		"fun plus(other: Int): Long",
		"fun compareTo(other: Long): Int",
		"fun toInt(): Int",
	},
	"Double": {
		"fun plus(other: Double): Double",
		"fun plus(other: Int): Double",
		"fun compareTo(other: Double): Int",
		"fun toInt(): Int",
	},
	"Boolean": {
		"fun not(): Boolean",
		"infix fun and(other: Boolean): Boolean",
		"infix fun or(other: Boolean): Boolean",
	},
	"Collection": {
		"val size: Int",
		"fun isEmpty(): Boolean",
	},
	"List": {
		"fun get(index: Int): E",
		"fun subList(fromIndex: Int, toIndex: Int): List<E>",
	},
	"MutableList": {
		"fun add(element: E): Boolean",
		"fun set(index: Int, element: E): E",
	},
	"Array": {
		"val size: Int",
		"fun get(index: Int): T",
	},
	"Map": {
		"val size: Int",
		"fun get(key: K): V?",
		"fun containsKey(key: K): Boolean",
	},
	"Pair": {
		"val first: A",
		"val second: B",
	},
	"Throwable": {"val message: String?"},
}

// builtinFunctions are the top-level functions of the builtin package.
var builtinFunctions = []string{
	"fun <T> listOf(vararg elements: T): List<T>",
	"fun <T> emptyList(): List<T>",
	"fun <T> mutableListOf(vararg elements: T): MutableList<T>",
	"fun <T> setOf(vararg elements: T): Set<T>",
	"fun <T> arrayOf(vararg elements: T): Array<T>",
	"fun <K, V> mapOf(vararg pairs: Pair<K, V>): Map<K, V>",
	"infix fun <A, B> A.to(that: B): Pair<A, B>",
	"fun println(message: Any?): Unit",
	"fun println(): Unit",
	"fun print(message: Any?): Unit",
	"fun <T : Comparable<T>> maxOf(a: T, b: T): T",
	"fun maxOf(a: Int, b: Int): Int",
	"fun maxOf(a: Long, b: Long): Long",
	"fun maxOf(a: Double, b: Double): Double",
	"fun <R> run(block: () -> R): R",
	"fun <T, R> T.let(block: (T) -> R): R",
	"fun <T> T.also(block: (T) -> Unit): T",
	"fun <T, R> Iterable<T>.map(transform: (T) -> R): List<R>",
	"fun <T> Iterable<T>.filter(predicate: (T) -> Boolean): List<T>",
	"fun <T> Iterable<T>.forEach(action: (T) -> Unit): Unit",
	"fun <T> List<T>.first(): T",
	"fun <T : Any> requireNotNull(value: T?): T",
	"fun error(message: Any): Nothing",
	"fun TODO(): Nothing",
	"val <T> List<T>.lastIndex: Int",
}

// Builtins returns the singleton table of builtin classes, members and
// functions, all declared in the kotlin package.
func Builtins() *Table {
	builtinOnce.Do(func() {
		builtinTable = NewTable(BuiltinModule)
		builtinTable.initBuiltins()
	})
	return builtinTable
}

// ResetBuiltins drops the singleton (for testing only).
func ResetBuiltins() {
	builtinOnce = sync.Once{}
	builtinTable = nil
}

func (t *Table) initBuiltins() {
	classes := typesystem.Builtins()
	for _, name := range typesystem.BuiltinClassNames() {
		ci := classes[name]
		simple := typesystem.SimpleName(name)
		sig := Signature{TypeParams: ci.TypeParams, Supertypes: ci.Supertypes, Return: ci.Type()}
		if ctor, ok := builtinConstructors[simple]; ok {
			params, err := parseParams(ctor, scoped(ci.TypeParams, typesystem.ResolveBuiltins))
			if err != nil {
				panic(fmt.Sprintf("builtin constructor %s: %v", simple, err))
			}
			sig.Params = params
		}
		t.mustDeclare(simple, ClassSymbol, sig, InPackage(typesystem.BuiltinPackage))

		for _, text := range builtinMembers[simple] {
			d, err := ParseDeclaration(text, ci.TypeParams, nil)
			if err != nil {
				panic(fmt.Sprintf("builtin member of %s: %v", simple, err))
			}
			t.mustDeclare(d.Name, d.Kind, d.Signature, d.Options(InClass(name))...)
		}
	}
	for _, text := range builtinFunctions {
		d, err := ParseDeclaration(text, nil, nil)
		if err != nil {
			panic(fmt.Sprintf("builtin function: %v", err))
		}
		t.mustDeclare(d.Name, d.Kind, d.Signature, d.Options(InPackage(typesystem.BuiltinPackage))...)
	}
}

func (t *Table) mustDeclare(name string, kind SymbolKind, sig Signature, options ...DeclareOption) {
	options = append(options, WithOrigin(BuiltinOrigin))
	if _, err := t.Declare(name, kind, sig, options...); err != nil {
		panic(err)
	}
}

// Options converts the parsed modifiers to declare options.
func (d *Declaration) Options(extra ...DeclareOption) []DeclareOption {
	opts := append([]DeclareOption(nil), extra...)
	if d.Infix {
		opts = append(opts, AsInfix())
	}
	if d.Mutable {
		opts = append(opts, AsMutable())
	}
	return opts
}
