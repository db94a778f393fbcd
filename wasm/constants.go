package wasm

const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs define the binary identifiers for each module section.
// Sections must appear in increasing order by ID.
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
	SectionData     byte = 11
)

// External kinds for imports and exports.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
	KindGlobal byte = 3
)

// ValType is a core value type.
type ValType byte

const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

const (
	FuncTypeByte   byte = 0x60
	BlockTypeEmpty byte = 0x40
	limitsNoMax    byte = 0x00
	limitsHasMax   byte = 0x01
	globalMutable  byte = 0x01
)

// Opcodes used by the guest assembler.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A

	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24

	OpI32Load8U  byte = 0x2D
	OpI32Store8  byte = 0x3A
	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40

	OpI32Const byte = 0x41

	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtU byte = 0x49
	OpI32GtU byte = 0x4B
	OpI32LeU byte = 0x4D
	OpI32GeU byte = 0x4F

	OpI32Add  byte = 0x6A
	OpI32Sub  byte = 0x6B
	OpI32Mul  byte = 0x6C
	OpI32DivU byte = 0x6E
	OpI32RemU byte = 0x70
	OpI32And  byte = 0x71
	OpI32Shl  byte = 0x74

	// OpPrefixFC introduces the bulk memory instructions.
	OpPrefixFC byte = 0xFC
)

const (
	OpFCMemoryCopy uint32 = 10
	OpFCMemoryFill uint32 = 11
)

// PageSize is the size of one linear memory page in bytes.
const PageSize uint32 = 65536
