package modbus

import "fmt"

// Function identifies a Modbus PDU's function code. The high bit, when set
// on a received PDU, marks an exception response (see isException).
type Function byte

const (
	FuncReadCoils                  Function = 0x01
	FuncReadDiscreteInputs         Function = 0x02
	FuncReadHoldingRegisters       Function = 0x03
	FuncReadInputRegisters         Function = 0x04
	FuncWriteSingleCoil            Function = 0x05
	FuncWriteSingleRegister        Function = 0x06
	FuncWriteMultipleCoils         Function = 0x0F
	FuncWriteMultipleRegisters     Function = 0x10
	FuncMaskWriteRegister          Function = 0x16
	FuncReadWriteMultipleRegisters Function = 0x17
)

// exceptionFlag marks a response function code as carrying an exception.
const exceptionFlag byte = 0x80

func (f Function) String() string {
	switch f {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	case FuncMaskWriteRegister:
		return "MaskWriteRegister"
	case FuncReadWriteMultipleRegisters:
		return "ReadWriteMultipleRegisters"
	default:
		return fmt.Sprintf("Function(0x%02x)", byte(f))
	}
}

// isException reports whether a PDU's leading function-code byte carries
// the exception flag, and returns the underlying (unflagged) function code.
func isException(fc byte) (Function, bool) {
	if fc&exceptionFlag != 0 {
		return Function(fc &^ exceptionFlag), true
	}
	return Function(fc), false
}
