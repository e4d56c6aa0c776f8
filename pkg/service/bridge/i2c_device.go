// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package bridge

import (
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// From /usr/include/linux/i2c-dev.h and /usr/include/linux/i2c.h
const (
	i2cSlave = 0x0703
	i2cFuncs = 0x0705
	i2cSmbus = 0x0720

	i2cSmbusRead  = 1
	i2cSmbusWrite = 0

	i2cFuncSmbusQuick           = 0x00010000
	i2cFuncSmbusReadByteData    = 0x00080000
	i2cFuncSmbusWriteByteData   = 0x00100000
	i2cSmbusTransactionQuick    = 0
	i2cSmbusTransactionByteData = 2

	// i2c_smbus_data is a union of a byte, a word and a 34 byte block
	i2cSmbusDataSize = 34
)

type i2cSmbusIoctlData struct {
	readWrite byte
	command   byte
	size      uint32
	data      uintptr
}

type i2cDevice struct {
	address uint8
	mutex   sync.Mutex
	file    *os.File
	funcs   uint64 // adapter functionality mask
}

// newI2CDevice opens the bus at the given location and selects the given address.
func newI2CDevice(location string, address uint8) (*i2cDevice, error) {
	f, err := os.OpenFile(location, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s failed", location)
	}
	d := &i2cDevice{
		address: address,
		file:    f,
	}
	if err := d.ioctl(i2cFuncs, uintptr(unsafe.Pointer(&d.funcs))); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "querying functionality failed")
	}
	if err := d.ioctl(i2cSlave, uintptr(address)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "setting address 0x%02x failed", address)
	}
	return d, nil
}

func (d *i2cDevice) closeFile() error {
	return d.file.Close()
}

// DetectDevice returns nil when a device acknowledges a quick write.
func (d *i2cDevice) DetectDevice() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.funcs&i2cFuncSmbusQuick == 0 {
		return errors.New("SMBus quick not supported")
	}
	if err := d.smbusAccess(i2cSmbusWrite, 0, i2cSmbusTransactionQuick, 0); err != nil {
		return errors.Wrap(err, "quick failed")
	}
	return nil
}

// Read a byte from given register
func (d *i2cDevice) ReadByteReg(reg uint8) (uint8, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.funcs&i2cFuncSmbusReadByteData == 0 {
		return 0, errors.New("SMBus read byte data not supported")
	}
	var data [i2cSmbusDataSize]byte
	if err := d.smbusAccess(i2cSmbusRead, reg, i2cSmbusTransactionByteData, uintptr(unsafe.Pointer(&data[0]))); err != nil {
		return 0, errors.Wrapf(err, "readByteData[0x%02x](0x%02x) failed", d.address, reg)
	}
	return data[0], nil
}

// Write a byte to given register
func (d *i2cDevice) WriteByteReg(reg uint8, val uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.funcs&i2cFuncSmbusWriteByteData == 0 {
		return errors.New("SMBus write byte data not supported")
	}
	var data [i2cSmbusDataSize]byte
	data[0] = val
	if err := d.smbusAccess(i2cSmbusWrite, reg, i2cSmbusTransactionByteData, uintptr(unsafe.Pointer(&data[0]))); err != nil {
		return errors.Wrapf(err, "writeByteData[0x%02x](0x%02x) failed", d.address, reg)
	}
	return nil
}

func (d *i2cDevice) smbusAccess(readWrite byte, command byte, size uint32, data uintptr) error {
	args := &i2cSmbusIoctlData{
		readWrite: readWrite,
		command:   command,
		size:      size,
		data:      data,
	}
	return d.ioctl(i2cSmbus, uintptr(unsafe.Pointer(args)))
}

func (d *i2cDevice) ioctl(req uint, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), uintptr(req), arg); errno != 0 {
		return errno
	}
	return nil
}
